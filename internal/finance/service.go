package finance

import (
	"context"
	"fmt"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/metrics"
	"ordem/internal/realtime"
	"ordem/internal/storage"
)

const (
	transactionsTable = "transactions"
	aggregatesTable   = "monthly_aggregates"
)

// Service writes transactions and keeps monthly_aggregates equal to the
// per-category sums. Each write and its recomputation share one sqlite
// transaction, so concurrent writers serialize and the last one wins.
type Service struct {
	store     *storage.Store
	publisher realtime.Publisher
	metrics   *metrics.Metrics
}

func NewService(store *storage.Store, publisher realtime.Publisher, m *metrics.Metrics) *Service {
	return &Service{store: store, publisher: publisher, metrics: m}
}

// MonthView is everything the finance page shows for one month.
type MonthView struct {
	Month        core.MonthKey
	Aggregate    core.MonthlyAggregate
	Transactions []core.Transaction
	Budgets      []BudgetUsage
}

func (s *Service) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var (
		created core.Transaction
		aggs    []core.MonthlyAggregate
	)
	err := s.store.Tx(ctx, func(tx *storage.Store) error {
		var err error
		if created, err = tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		aggs, err = recomputeMonths(ctx, tx, t.UserID, t.Date.MonthKey())
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.afterWrite(ctx, log.OpCreate, created.ID, created.UserID, aggs)
	s.publish(ctx, realtime.Change{Type: realtime.Insert, Table: transactionsTable, Record: TransactionRecord(created)})
	return created, nil
}

// Update rewrites a transaction. When the date moves to another month both
// months are recomputed.
func (s *Service) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var (
		before, after core.Transaction
		aggs          []core.MonthlyAggregate
	)
	err := s.store.Tx(ctx, func(tx *storage.Store) error {
		var err error
		if before, err = tx.GetTransaction(ctx, t.UserID, t.ID); err != nil {
			return err
		}
		if after, err = tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		aggs, err = recomputeMonths(ctx, tx, t.UserID, before.Date.MonthKey(), after.Date.MonthKey())
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.afterWrite(ctx, log.OpUpdate, after.ID, after.UserID, aggs)
	s.publish(ctx, realtime.Change{Type: realtime.Update, Table: transactionsTable,
		Record: TransactionRecord(after), OldRecord: TransactionRecord(before)})
	return after, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	var (
		deleted core.Transaction
		aggs    []core.MonthlyAggregate
	)
	err := s.store.Tx(ctx, func(tx *storage.Store) error {
		var err error
		if deleted, err = tx.GetTransaction(ctx, userID, id); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, userID, id); err != nil {
			return err
		}
		aggs, err = recomputeMonths(ctx, tx, userID, deleted.Date.MonthKey())
		return err
	})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.afterWrite(ctx, log.OpDelete, id, userID, aggs)
	s.publish(ctx, realtime.Change{Type: realtime.Delete, Table: transactionsTable, OldRecord: TransactionRecord(deleted)})
	return nil
}

// RecomputeMonth rebuilds one month from scratch, used by ordemctl to repair
// aggregates.
func (s *Service) RecomputeMonth(ctx context.Context, userID string, month core.MonthKey) (core.MonthlyAggregate, error) {
	var aggs []core.MonthlyAggregate
	err := s.store.Tx(ctx, func(tx *storage.Store) error {
		var err error
		aggs, err = recomputeMonths(ctx, tx, userID, month)
		return err
	})
	if err != nil {
		return core.MonthlyAggregate{}, err
	}
	s.metrics.IncRecompute()
	return aggs[0], nil
}

// recomputeMonths loads every transaction of the user and upserts the
// aggregate of each distinct month.
func recomputeMonths(ctx context.Context, tx *storage.Store, userID string, months ...core.MonthKey) ([]core.MonthlyAggregate, error) {
	txs, err := tx.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []core.MonthlyAggregate
	seen := map[core.MonthKey]bool{}
	for _, m := range months {
		if seen[m] {
			continue
		}
		seen[m] = true
		agg := Recompute(userID, txs, m)
		if err := tx.UpsertAggregate(ctx, agg); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func (s *Service) afterWrite(ctx context.Context, op, id, userID string, aggs []core.MonthlyAggregate) {
	s.metrics.RecordMutation(transactionsTable, op)
	log.LogMutation(ctx, op, transactionsTable, id, userID)
	for _, agg := range aggs {
		s.metrics.IncRecompute()
		log.FromContext(ctx).WithComponent(log.ComponentFinance).DebugContext(ctx, "Monthly aggregate recomputed",
			log.FieldUserID, userID,
			log.FieldYear, agg.Month.Year,
			log.FieldMonth, agg.Month.Month,
			"balance_cents", agg.Balance().Cents)
		s.publish(ctx, realtime.Change{Type: realtime.Update, Table: aggregatesTable, Record: AggregateRecord(agg)})
	}
}

func (s *Service) publish(ctx context.Context, c realtime.Change) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, c); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentFinance).WarnContext(ctx, "Failed to publish change",
			log.FieldTable, c.Table, log.FieldRecordID, c.RecordID(), log.FieldError, err)
	}
}

// Month loads the aggregate, the transactions and the budget usage of month.
func (s *Service) Month(ctx context.Context, userID string, month core.MonthKey) (MonthView, error) {
	agg, err := s.store.GetAggregate(ctx, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	txs, err := s.store.ListTransactionsInMonth(ctx, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	budgets, err := s.store.ListBudgets(ctx, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	return MonthView{Month: month, Aggregate: agg, Transactions: txs, Budgets: Usage(agg, budgets)}, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

// Year returns the stored aggregates of year, one per month with data.
func (s *Service) Year(ctx context.Context, userID string, year int) ([]core.MonthlyAggregate, error) {
	return s.store.ListAggregates(ctx, userID, year)
}

// TransactionRecord renders t in the change feed shape.
func TransactionRecord(t core.Transaction) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"user_id":      t.UserID,
		"date":         t.Date.String(),
		"description":  t.Description,
		"amount_cents": t.Amount.Cents,
		"category":     string(t.Category),
		"created_at":   t.CreatedAt,
		"updated_at":   t.UpdatedAt,
	}
}

func AggregateRecord(a core.MonthlyAggregate) map[string]any {
	return map[string]any{
		"user_id":          a.UserID,
		"year":             a.Month.Year,
		"month":            a.Month.Month,
		"income_cents":     a.Income.Cents,
		"fixed_cents":      a.Fixed.Cents,
		"variable_cents":   a.Variable.Cents,
		"debt_cents":       a.Debt.Cents,
		"investment_cents": a.Investment.Cents,
		"balance_cents":    a.Balance().Cents,
	}
}
