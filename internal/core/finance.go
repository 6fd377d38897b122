package core

import (
	"errors"
	"strings"
	"time"
)

// Category is one of the five ledger buckets a transaction falls in.
type Category string

const (
	CategoryIncome     Category = "income"
	CategoryFixed      Category = "fixed"
	CategoryVariable   Category = "variable"
	CategoryDebt       Category = "debt"
	CategoryInvestment Category = "investment"
)

// Categories lists the ledger buckets in display order.
var Categories = []Category{CategoryIncome, CategoryFixed, CategoryVariable, CategoryDebt, CategoryInvestment}

var (
	ErrInvalidCategory  = errors.New("invalid category")
	ErrEmptyDescription = errors.New("empty description")
)

func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Label returns the Portuguese label shown in the UI.
func (c Category) Label() string {
	switch c {
	case CategoryIncome:
		return "Receitas"
	case CategoryFixed:
		return "Custos fixos"
	case CategoryVariable:
		return "Custos variáveis"
	case CategoryDebt:
		return "Dívidas"
	case CategoryInvestment:
		return "Investimentos"
	default:
		return string(c)
	}
}

type (
	Transaction struct {
		ID          string
		UserID      string
		Date        Date
		Description string
		Amount      Money
		Category    Category
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// MonthlyAggregate holds the five per-category totals of one user's month.
	MonthlyAggregate struct {
		UserID     string
		Month      MonthKey
		Income     Money
		Fixed      Money
		Variable   Money
		Debt       Money
		Investment Money
		UpdatedAt  time.Time
	}

	Budget struct {
		ID       string
		Category Category
		Month    MonthKey
		Limit    Money
	}
)

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// Total returns the bucket total for c.
func (a MonthlyAggregate) Total(c Category) Money {
	switch c {
	case CategoryIncome:
		return a.Income
	case CategoryFixed:
		return a.Fixed
	case CategoryVariable:
		return a.Variable
	case CategoryDebt:
		return a.Debt
	case CategoryInvestment:
		return a.Investment
	default:
		return Money{}
	}
}

// Outflow is everything that leaves the income bucket.
func (a MonthlyAggregate) Outflow() Money {
	return Money{Cents: a.Fixed.Cents + a.Variable.Cents + a.Debt.Cents + a.Investment.Cents}
}

// Balance is income minus every outflow bucket. It may be negative.
func (a MonthlyAggregate) Balance() Money {
	return a.Income.Sub(a.Outflow())
}
