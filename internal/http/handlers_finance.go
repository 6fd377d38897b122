package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ordem/internal/core"
	"ordem/internal/finance"
	"ordem/internal/log"
	"ordem/internal/resource"
)

type (
	financeView struct {
		Month finance.MonthView
		Prev  core.MonthKey
		Next  core.MonthKey
		Year  []yearRow
	}

	yearRow struct {
		Month     int
		Aggregate core.MonthlyAggregate
	}

	financePage struct {
		View    financeView
		Budgets tableView
	}

	transactionForm struct {
		ID          string
		Date        string
		Description string
		Amount      string
		Category    string
		View        core.MonthKey
		Errors      map[string]string
	}
)

func (s *Server) financeView(r *http.Request, month core.MonthKey) (financeView, error) {
	user := session(r).UserID
	mv, err := s.Finance.Month(r.Context(), user, month)
	if err != nil {
		return financeView{}, err
	}
	aggs, err := s.Finance.Year(r.Context(), user, month.Year)
	if err != nil {
		return financeView{}, err
	}
	byMonth := make(map[int]core.MonthlyAggregate, len(aggs))
	for _, a := range aggs {
		byMonth[a.Month.Month] = a
	}
	v := financeView{Month: mv, Prev: month.Prev(), Next: month.Next()}
	for m := 1; m <= 12; m++ {
		v.Year = append(v.Year, yearRow{Month: m, Aggregate: byMonth[m]})
	}
	return v, nil
}

func (s *Server) handleFinance(w http.ResponseWriter, r *http.Request) {
	month := ParseMonthParams(r.URL.Query())
	fv, err := s.financeView(r, month)
	if err != nil {
		s.fail(w, r, err, "finance")
		return
	}
	def, _ := resource.Lookup("budgets")
	budgets, err := s.tableFor(r, def, "")
	if err != nil {
		s.fail(w, r, err, "finance")
		return
	}
	title := fmt.Sprintf("Finanças · %s %d", finance.MonthName(month.Month), month.Year)
	s.render(w, r, http.StatusOK, "page_finance", s.page(r, title, "finance", financePage{View: fv, Budgets: budgets}))
}

func (s *Server) handleFinanceMonth(w http.ResponseWriter, r *http.Request) {
	s.writeFinanceMonth(w, r, ParseMonthParams(r.URL.Query()), nil)
}

func (s *Server) writeFinanceMonth(w http.ResponseWriter, r *http.Request, month core.MonthKey, decorate func(*HTMXResponseBuilder)) {
	fv, err := s.financeView(r, month)
	if err != nil {
		s.fail(w, r, err, "finance_month")
		return
	}
	resp, err := s.partial(r, "finance_month", fv)
	if err != nil {
		InternalServerError("Erro ao montar o mês").Write(w)
		return
	}
	if decorate != nil {
		decorate(resp)
	}
	resp.Write(w)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	month := ParseMonthParams(r.URL.Query())
	user := session(r).UserID
	mv, err := s.Finance.Month(r.Context(), user, month)
	if err != nil {
		s.fail(w, r, err, "statement")
		return
	}
	owner := session(r).Email
	if acc, err := s.Profiles.Get(r.Context(), user); err == nil && acc.Profile.DisplayName != "" {
		owner = acc.Profile.DisplayName
	}
	pdf, err := finance.Statement(owner, mv)
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentFinance).ErrorContext(r.Context(), "Statement rendering failed",
			log.FieldYear, month.Year, log.FieldMonth, month.Month, log.FieldError, err)
		http.Error(w, "Erro ao gerar o extrato", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="extrato-%04d-%02d.pdf"`, month.Year, month.Month))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

func (s *Server) handleTransactionNew(w http.ResponseWriter, r *http.Request) {
	view := ParseMonthParams(r.URL.Query())
	date := core.Today()
	if !view.Contains(date) {
		date = view.First()
	}
	s.render(w, r, http.StatusOK, "transaction_modal", transactionForm{
		Date:     date.String(),
		Category: string(core.CategoryVariable),
		View:     view,
	})
}

func (s *Server) handleTransactionEdit(w http.ResponseWriter, r *http.Request) {
	t, err := s.Finance.Get(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "transaction_edit")
		return
	}
	s.render(w, r, http.StatusOK, "transaction_modal", transactionForm{
		ID:          t.ID,
		Date:        t.Date.String(),
		Description: t.Description,
		Amount:      core.FormatInput(t.Amount.Cents),
		Category:    string(t.Category),
		View:        ParseMonthParams(r.URL.Query()),
	})
}

// parseTransaction reads the modal form. On failure the returned form holds
// the per-field messages.
func parseTransaction(form url.Values) (core.Transaction, transactionForm, bool) {
	tf := transactionForm{
		Date:        strings.TrimSpace(form.Get("date")),
		Description: strings.TrimSpace(form.Get("description")),
		Amount:      strings.TrimSpace(form.Get("amount")),
		Category:    form.Get("category"),
		View:        ParseMonthParams(form),
		Errors:      map[string]string{},
	}
	var t core.Transaction

	d, err := core.ParseDate(tf.Date)
	if err != nil {
		tf.Errors["date"] = "data inválida"
	}
	t.Date = d

	switch {
	case tf.Description == "":
		tf.Errors["description"] = "obrigatório"
	case len(tf.Description) > 200:
		tf.Errors["description"] = "máximo de 200 caracteres"
	}
	t.Description = tf.Description

	cents, err := core.ParseDecimalToCents(tf.Amount)
	if err != nil || cents <= 0 {
		tf.Errors["amount"] = "informe um valor positivo"
	}
	t.Amount = core.Money{Cents: cents}

	t.Category = core.Category(tf.Category)
	if !t.Category.Valid() {
		tf.Errors["category"] = "categoria inválida"
	}
	return t, tf, len(tf.Errors) == 0
}

func (s *Server) handleTransactionCreate(w http.ResponseWriter, r *http.Request) {
	s.saveTransaction(w, r, "")
}

func (s *Server) handleTransactionUpdate(w http.ResponseWriter, r *http.Request) {
	s.saveTransaction(w, r, r.PathValue("id"))
}

func (s *Server) saveTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	t, tf, ok := parseTransaction(r.PostForm)
	tf.ID = id
	if !ok {
		resp, err := s.partial(r, "transaction_form", tf)
		if err != nil {
			InternalServerError("Erro ao montar o formulário").Write(w)
			return
		}
		resp.Status(http.StatusUnprocessableEntity).TriggerErrorNotification("Verifique os campos destacados").Write(w)
		return
	}

	t.ID = id
	t.UserID = session(r).UserID
	var err error
	message := "Lançamento registrado"
	if id == "" {
		_, err = s.Finance.Create(r.Context(), t)
	} else {
		_, err = s.Finance.Update(r.Context(), t)
		message = "Lançamento atualizado"
	}
	if err != nil {
		s.fail(w, r, err, "transaction_save")
		return
	}
	s.writeFinanceMonth(w, r, tf.View, func(b *HTMXResponseBuilder) {
		b.Retarget("#finance-month", "outerHTML").
			TriggerSuccessNotification(message).
			TriggerRecordsChanged("transactions").
			TriggerModalClose()
	})
}

func (s *Server) handleTransactionDelete(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if err := s.Finance.Delete(r.Context(), session(r).UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, err, "transaction_delete")
		return
	}
	s.writeFinanceMonth(w, r, ParseMonthParams(r.Form), func(b *HTMXResponseBuilder) {
		b.Retarget("#finance-month", "outerHTML").
			TriggerSuccessNotification("Lançamento excluído").
			TriggerRecordsChanged("transactions")
	})
}
