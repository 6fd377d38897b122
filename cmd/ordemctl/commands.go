package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"ordem/internal/auth"
	"ordem/internal/billing"
	"ordem/internal/core"
	"ordem/internal/finance"
	"ordem/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := storage.RunMigrations(a.dbPath); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(a.dbPath)
			if err != nil {
				return err
			}
			a.printf("schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newUserCmd(a *app) *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}

	var email, password, name string
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account with a trial subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store()
			if err != nil {
				return err
			}
			if name == "" {
				name = email
			}
			svc := auth.NewService(st, a.cfg.TrialDays, a.cfg.AdminEmails)
			acc, err := svc.Register(cmd.Context(), email, name, password)
			if err != nil {
				return fmt.Errorf("create %s: %w", email, err)
			}
			role := acc.Profile.Role
			if admin && role != core.RoleAdmin {
				if err := st.SetRole(cmd.Context(), acc.ID, core.RoleAdmin); err != nil {
					return err
				}
				role = core.RoleAdmin
			}
			a.printf("created %s %s role=%s\n", acc.ID, acc.Email, role)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&password, "password", "", "account password")
	create.Flags().StringVar(&name, "name", "", "display name (defaults to the email)")
	create.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	user.AddCommand(create)
	return user
}

func newCreditsCmd(a *app) *cobra.Command {
	credits := &cobra.Command{Use: "credits", Short: "Manage the credit ledger"}

	var email, reason string
	var amount int64
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Append a credit entry for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store()
			if err != nil {
				return err
			}
			acc, err := lookupAccount(cmd.Context(), st, email)
			if err != nil {
				return err
			}
			entry, err := billing.NewService(st, nil).GrantCredits(cmd.Context(), acc.ID, amount, reason)
			if err != nil {
				return err
			}
			balance, err := st.CreditBalance(cmd.Context(), acc.ID)
			if err != nil {
				return err
			}
			a.printf("granted %d to %s (entry %s), balance %d\n", entry.Amount, acc.Email, entry.ID, balance)
			return nil
		},
	}
	grant.Flags().StringVar(&email, "email", "", "account email")
	grant.Flags().Int64Var(&amount, "amount", 0, "credits to add, negative to debit")
	grant.Flags().StringVar(&reason, "reason", "", "ledger reason")
	_ = grant.MarkFlagRequired("email")
	_ = grant.MarkFlagRequired("amount")
	_ = grant.MarkFlagRequired("reason")

	credits.AddCommand(grant)
	return credits
}

func newSubscriptionCmd(a *app) *cobra.Command {
	sub := &cobra.Command{Use: "subscription", Short: "Manage subscriptions"}

	var email, plan string
	var days int
	set := &cobra.Command{
		Use:   "set",
		Short: "Activate a plan for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store()
			if err != nil {
				return err
			}
			acc, err := lookupAccount(cmd.Context(), st, email)
			if err != nil {
				return err
			}
			p, err := st.GetPlanByCode(cmd.Context(), plan)
			if err != nil {
				return fmt.Errorf("lookup plan %s: %w", plan, err)
			}
			s, err := billing.NewService(st, nil).SetSubscription(cmd.Context(), acc.ID, p.ID, days)
			if err != nil {
				return err
			}
			a.printf("%s on %s (%s) until %s\n", acc.Email, p.Code, s.Status, s.CurrentPeriodEnd.Format("2006-01-02"))
			return nil
		},
	}
	set.Flags().StringVar(&email, "email", "", "account email")
	set.Flags().StringVar(&plan, "plan", "", "plan code")
	set.Flags().IntVar(&days, "days", 30, "length of the period in days")
	_ = set.MarkFlagRequired("email")
	_ = set.MarkFlagRequired("plan")

	sub.AddCommand(set)
	return sub
}

func newPlansCmd(a *app) *cobra.Command {
	plans := &cobra.Command{Use: "plans", Short: "Manage the plan catalog"}

	var file string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Upsert the plan catalog by code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(file)
			if err != nil {
				return err
			}
			st, err := a.store()
			if err != nil {
				return err
			}
			n, err := billing.NewService(st, nil).SyncPlans(cmd.Context(), catalog)
			if err != nil {
				return err
			}
			a.printf("synced %d plans\n", n)
			return nil
		},
	}
	sync.Flags().StringVar(&file, "file", "", "YAML catalog (defaults to the built-in one)")

	plans.AddCommand(sync)
	return plans
}

func lookupAccount(ctx context.Context, st *storage.Store, email string) (core.Account, error) {
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return core.Account{}, err
	}
	acc, err := st.GetAccountByEmail(ctx, normalized)
	if err != nil {
		return core.Account{}, fmt.Errorf("lookup %s: %w", normalized, err)
	}
	return acc, nil
}

func loadCatalog(file string) ([]core.Plan, error) {
	if file == "" {
		return billing.DefaultCatalog()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return billing.ParseCatalog(data)
}

func newRecomputeCmd(a *app) *cobra.Command {
	var email string
	var year, month int
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild monthly finance aggregates from transactions",
		Long: `Rebuild the monthly aggregates of one account. With --year and --month
only that month is rebuilt, otherwise every month that has a transaction or a
stored aggregate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store()
			if err != nil {
				return err
			}
			acc, err := lookupAccount(cmd.Context(), st, email)
			if err != nil {
				return err
			}

			var months []core.MonthKey
			if year != 0 || month != 0 {
				k := core.MonthKey{Year: year, Month: month}
				if err := k.Validate(); err != nil {
					return err
				}
				months = append(months, k)
			} else {
				txs, err := st.ListTransactions(cmd.Context(), acc.ID)
				if err != nil {
					return err
				}
				// Stored months without transactions left are reset to zero.
				stored, err := st.ListAggregateMonths(cmd.Context(), acc.ID)
				if err != nil {
					return err
				}
				months = distinctMonths(txs, stored...)
			}

			svc := finance.NewService(st, nil, nil)
			for _, k := range months {
				agg, err := svc.RecomputeMonth(cmd.Context(), acc.ID, k)
				if err != nil {
					return fmt.Errorf("recompute %s: %w", k, err)
				}
				a.printf("%s balance %s\n", k, agg.Balance())
			}
			a.printf("recomputed %d months for %s\n", len(months), acc.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().IntVar(&year, "year", 0, "year of the month to rebuild")
	cmd.Flags().IntVar(&month, "month", 0, "month to rebuild (1-12)")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsRequiredTogether("year", "month")
	return cmd
}

// distinctMonths is the sorted union of the transaction months and extra.
func distinctMonths(txs []core.Transaction, extra ...core.MonthKey) []core.MonthKey {
	seen := map[core.MonthKey]bool{}
	var out []core.MonthKey
	add := func(k core.MonthKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, t := range txs {
		add(t.Date.MonthKey())
	}
	for _, k := range extra {
		add(k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
