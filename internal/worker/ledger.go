// Package worker holds the background jobs run by ordem-worker: the ledger
// mirror fed from AMQP and the scheduled subscription sweep.
package worker

import (
	"context"
	"errors"
	"fmt"

	"ordem/internal/amqp"
	"ordem/internal/log"
	"ordem/internal/realtime"
	"ordem/internal/sheets"
)

const transactionsTable = "transactions"

// LedgerWorker mirrors transaction changes into a spreadsheet ledger.
type LedgerWorker struct {
	ledger sheets.Ledger
	logger *log.Logger
}

func NewLedgerWorker(ledger sheets.Ledger, logger *log.Logger) *LedgerWorker {
	return &LedgerWorker{ledger: ledger, logger: logger.WithComponent(log.ComponentSheets)}
}

// HandleChange applies one change message. Returning an error requeues it.
func (w *LedgerWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Table != transactionsTable {
		return nil
	}

	switch msg.Type {
	case realtime.Insert:
		row, err := sheets.RowFromRecord(msg.Record)
		if err != nil {
			w.logger.WarnContext(ctx, "Dropping malformed insert", log.FieldError, err)
			return nil
		}
		if err := w.ledger.Append(ctx, row); err != nil {
			return fmt.Errorf("append %s: %w", row.ID, err)
		}
		w.logger.InfoContext(ctx, "Mirrored new transaction", log.FieldRecordID, row.ID)

	case realtime.Update:
		row, err := sheets.RowFromRecord(msg.Record)
		if err != nil {
			w.logger.WarnContext(ctx, "Dropping malformed update", log.FieldError, err)
			return nil
		}
		err = w.ledger.Update(ctx, row)
		if errors.Is(err, sheets.ErrRowNotFound) {
			// The insert was never mirrored; write the current state instead.
			err = w.ledger.Append(ctx, row)
		}
		if err != nil {
			return fmt.Errorf("update %s: %w", row.ID, err)
		}
		w.logger.InfoContext(ctx, "Mirrored transaction update", log.FieldRecordID, row.ID)

	case realtime.Delete:
		id, _ := msg.OldRecord["id"].(string)
		if id == "" {
			w.logger.WarnContext(ctx, "Dropping delete without id")
			return nil
		}
		if err := w.ledger.Clear(ctx, id); err != nil {
			if errors.Is(err, sheets.ErrRowNotFound) {
				w.logger.DebugContext(ctx, "Deleted transaction was not mirrored", log.FieldRecordID, id)
				return nil
			}
			return fmt.Errorf("clear %s: %w", id, err)
		}
		w.logger.InfoContext(ctx, "Cleared deleted transaction", log.FieldRecordID, id)
	}
	return nil
}
