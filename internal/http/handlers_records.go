package http

import (
	"errors"
	"net/http"
	"net/url"

	"ordem/internal/resource"
	"ordem/internal/storage"
)

type (
	tableView struct {
		Def      *resource.Definition
		Columns  []resource.Field
		Rows     []rowView
		ParentID string
		// Detail is set when rows have child resources to open.
		Detail bool
	}

	rowView struct {
		ID      string
		Cells   []string
		Toggles []toggleView
	}

	toggleView struct {
		Field string
		Label string
		On    bool
	}

	formView struct {
		Def      *resource.Definition
		ID       string
		ParentID string
		Fields   []fieldView
	}

	fieldView struct {
		resource.Field
		Value   string
		Checked bool
		Error   string
	}

	domainView struct {
		Domain resource.Domain
		Tables []tableView
	}

	detailView struct {
		Def      *resource.Definition
		ID       string
		Fields   []detailField
		Children []tableView
	}

	detailField struct {
		Label string
		Value string
	}
)

func newTableView(def *resource.Definition, rows []storage.Row, parentID string) tableView {
	tv := tableView{
		Def:      def,
		Columns:  def.Columns(),
		ParentID: parentID,
		Detail:   len(resource.Children(def.Name)) > 0,
	}
	toggles := def.Toggles()
	for _, row := range rows {
		rv := rowView{ID: row.ID}
		for _, f := range tv.Columns {
			if f.Kind == resource.Bool {
				continue
			}
			rv.Cells = append(rv.Cells, f.Display(row.Values[f.Name]))
		}
		for _, f := range toggles {
			on, _ := row.Values[f.Name].(bool)
			rv.Toggles = append(rv.Toggles, toggleView{Field: f.Name, Label: f.Label, On: on})
		}
		tv.Rows = append(tv.Rows, rv)
	}
	// Bool columns are rendered as toggles after the value cells.
	cols := tv.Columns[:0:0]
	for _, f := range tv.Columns {
		if f.Kind != resource.Bool {
			cols = append(cols, f)
		}
	}
	tv.Columns = cols
	return tv
}

func newFormView(def *resource.Definition, id, parentID string, values map[string]any, form url.Values, errs resource.FieldErrors) formView {
	fv := formView{Def: def, ID: id, ParentID: parentID}
	for _, f := range def.Fields {
		if f.Kind == resource.Ref {
			continue
		}
		field := fieldView{Field: f, Error: errs[f.Name]}
		switch {
		case form != nil:
			field.Value = form.Get(f.Name)
			field.Checked = form.Get(f.Name) != ""
		case values != nil:
			field.Value = f.Input(values[f.Name])
			field.Checked, _ = values[f.Name].(bool)
		}
		fv.Fields = append(fv.Fields, field)
	}
	return fv
}

// definition resolves the {resource} path value and enforces admin-only
// resources. It writes the error response itself.
func (s *Server) definition(w http.ResponseWriter, r *http.Request) (*resource.Definition, bool) {
	def, ok := resource.Lookup(r.PathValue("resource"))
	if !ok {
		s.handleNotFound(w, r)
		return nil, false
	}
	if def.Admin && !session(r).IsAdmin() {
		s.handleForbidden(w, r)
		return nil, false
	}
	return def, true
}

func (s *Server) tableFor(r *http.Request, def *resource.Definition, parentID string) (tableView, error) {
	rows, err := s.Records.List(r.Context(), def, session(r).UserID, parentID)
	if err != nil {
		return tableView{}, err
	}
	return newTableView(def, rows, parentID), nil
}

func (s *Server) domainPage(d resource.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := domainView{Domain: d}
		for _, name := range d.Resources {
			def, ok := resource.Lookup(name)
			if !ok {
				continue
			}
			tv, err := s.tableFor(r, def, "")
			if err != nil {
				s.fail(w, r, err, "domain_page")
				return
			}
			view.Tables = append(view.Tables, tv)
		}
		s.render(w, r, http.StatusOK, "page_domain", s.page(r, d.Title, d.Slug, view))
	}
}

func (s *Server) handleRecordTable(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	tv, err := s.tableFor(r, def, r.URL.Query().Get("parent"))
	if err != nil {
		s.fail(w, r, err, "list")
		return
	}
	resp, err := s.partial(r, "record_table", tv)
	if err != nil {
		InternalServerError("Erro ao montar a tabela").Write(w)
		return
	}
	resp.Write(w)
}

func (s *Server) handleRecordNew(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "record_modal", newFormView(def, "", r.URL.Query().Get("parent"), nil, nil, nil))
}

func (s *Server) handleRecordEdit(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	row, err := s.Records.Get(r.Context(), def, session(r).UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, "edit")
		return
	}
	parentID := ""
	if def.Parent != nil {
		parentID, _ = row.Values[def.Parent.Field].(string)
	}
	s.render(w, r, http.StatusOK, "record_modal", newFormView(def, row.ID, parentID, row.Values, nil, nil))
}

func (s *Server) handleRecordDetail(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	row, err := s.Records.Get(r.Context(), def, session(r).UserID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.handleNotFound(w, r)
			return
		}
		s.fail(w, r, err, "detail")
		return
	}
	view := detailView{Def: def, ID: row.ID}
	for _, f := range def.Fields {
		if f.Kind == resource.Ref {
			continue
		}
		view.Fields = append(view.Fields, detailField{Label: f.Label, Value: f.Display(row.Values[f.Name])})
	}
	for _, child := range resource.Children(def.Name) {
		tv, err := s.tableFor(r, child, row.ID)
		if err != nil {
			s.fail(w, r, err, "detail")
			return
		}
		view.Children = append(view.Children, tv)
	}
	s.render(w, r, http.StatusOK, "page_record", s.page(r, def.Singular, def.Domain, view))
}

func (s *Server) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	parentID := r.PostForm.Get("parent_id")
	values, err := resource.ParseForm(def, r.PostForm)
	if err == nil {
		_, err = s.Records.Create(r.Context(), def, session(r).UserID, values, parentID)
	}
	if err != nil {
		s.formError(w, r, def, "", parentID, err)
		return
	}
	s.respondTable(w, r, def, parentID, "Registro criado")
}

func (s *Server) handleRecordUpdate(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id := r.PathValue("id")
	parentID := r.PostForm.Get("parent_id")
	values, err := resource.ParseForm(def, r.PostForm)
	if err == nil {
		_, err = s.Records.Update(r.Context(), def, session(r).UserID, id, values)
	}
	if err != nil {
		s.formError(w, r, def, id, parentID, err)
		return
	}
	s.respondTable(w, r, def, parentID, "Registro atualizado")
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if err := s.Records.Delete(r.Context(), def, session(r).UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, err, "delete")
		return
	}
	s.respondTable(w, r, def, r.Form.Get("parent"), "Registro excluído")
}

func (s *Server) handleRecordToggle(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if _, err := s.Records.Toggle(r.Context(), def, session(r).UserID, r.PathValue("id"), r.PathValue("field")); err != nil {
		s.fail(w, r, err, "toggle")
		return
	}
	s.respondTable(w, r, def, r.Form.Get("parent"), "Registro atualizado")
}

// formError re-renders the modal with the field errors, or falls back to a
// toast for anything that is not a validation failure.
func (s *Server) formError(w http.ResponseWriter, r *http.Request, def *resource.Definition, id, parentID string, err error) {
	var fieldErrs resource.FieldErrors
	if !errors.As(err, &fieldErrs) {
		s.fail(w, r, err, "save")
		return
	}
	resp, rerr := s.partial(r, "record_form", newFormView(def, id, parentID, nil, r.PostForm, fieldErrs))
	if rerr != nil {
		InternalServerError("Erro ao montar o formulário").Write(w)
		return
	}
	resp.Status(http.StatusUnprocessableEntity).
		TriggerErrorNotification("Verifique os campos destacados").
		Write(w)
}

// respondTable swaps the refreshed table in place of the old one and closes
// the modal.
func (s *Server) respondTable(w http.ResponseWriter, r *http.Request, def *resource.Definition, parentID, message string) {
	tv, err := s.tableFor(r, def, parentID)
	if err != nil {
		s.fail(w, r, err, "list")
		return
	}
	resp, err := s.partial(r, "record_table", tv)
	if err != nil {
		InternalServerError("Erro ao montar a tabela").Write(w)
		return
	}
	resp.Retarget("#table-"+def.Name, "outerHTML").
		TriggerSuccessNotification(message).
		TriggerRecordsChanged(def.Table).
		TriggerModalClose().
		Write(w)
}
