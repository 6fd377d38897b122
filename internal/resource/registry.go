package resource

import (
	"sort"
	"strconv"
	"sync"

	"ordem/internal/core"
)

// Domain is a page grouping several resources.
type Domain struct {
	Slug      string
	Title     string
	Resources []string
}

var (
	statusOptions = []Option{{"todo", "A fazer"}, {"doing", "Em andamento"}, {"done", "Concluído"}}
	weekdays      = []Option{
		{"mon", "Segunda"}, {"tue", "Terça"}, {"wed", "Quarta"}, {"thu", "Quinta"},
		{"fri", "Sexta"}, {"sat", "Sábado"}, {"sun", "Domingo"},
	}
	frequencies = []Option{{"daily", "Diária"}, {"weekly", "Semanal"}, {"biweekly", "Quinzenal"}, {"monthly", "Mensal"}}
	meals       = []Option{
		{"breakfast", "Café da manhã"}, {"lunch", "Almoço"}, {"snack", "Lanche"},
		{"dinner", "Jantar"}, {"supper", "Ceia"},
	}
	intervals = []Option{{string(core.IntervalMonth), "Mensal"}, {string(core.IntervalYear), "Anual"}}
)

func categoryOptions() []Option {
	out := make([]Option, 0, len(core.Categories))
	for _, c := range core.Categories {
		out = append(out, Option{Value: string(c), Label: c.Label()})
	}
	return out
}

func monthOptions() []Option {
	out := make([]Option, 0, 12)
	for m := 1; m <= 12; m++ {
		s := strconv.Itoa(m)
		out = append(out, Option{Value: s, Label: s})
	}
	return out
}

var definitions = []*Definition{
	// study
	{
		Name: "study_items", Domain: "study", Table: "study_items", Title: "Conteúdos", Singular: "conteúdo",
		Order: "due_date = '', due_date, created_at",
		Fields: []Field{
			{Name: "subject", Label: "Matéria", Kind: Text, Required: true, Max: 120},
			{Name: "topic", Label: "Tópico", Kind: Text},
			{Name: "status", Label: "Status", Kind: Select, Required: true, Options: statusOptions},
			{Name: "due_date", Label: "Prazo", Kind: Date},
			{Name: "notes", Label: "Notas", Kind: Textarea, Hidden: true},
		},
	},
	{
		Name: "exams", Domain: "study", Table: "exams", Title: "Provas", Singular: "prova",
		Order: "date, time",
		Fields: []Field{
			{Name: "subject", Label: "Matéria", Kind: Text, Required: true, Max: 120},
			{Name: "date", Label: "Data", Kind: Date, Required: true},
			{Name: "time", Label: "Horário", Kind: Time},
			{Name: "location", Label: "Local", Kind: Text},
			{Name: "grade", Label: "Nota", Kind: Decimal},
		},
	},
	{
		Name: "schedule_slots", Domain: "study", Table: "schedule_slots", Title: "Cronograma", Singular: "horário",
		Order: "CASE weekday WHEN 'mon' THEN 1 WHEN 'tue' THEN 2 WHEN 'wed' THEN 3 WHEN 'thu' THEN 4 WHEN 'fri' THEN 5 WHEN 'sat' THEN 6 ELSE 7 END, start_time",
		Fields: []Field{
			{Name: "weekday", Label: "Dia", Kind: Select, Required: true, Options: weekdays},
			{Name: "start_time", Label: "Início", Kind: Time, Required: true},
			{Name: "end_time", Label: "Fim", Kind: Time},
			{Name: "subject", Label: "Matéria", Kind: Text, Required: true, Max: 120},
			{Name: "place", Label: "Local", Kind: Text},
		},
	},

	// health
	{
		Name: "appointments", Domain: "health", Table: "appointments", Title: "Consultas", Singular: "consulta",
		Order: "done, date, time",
		Fields: []Field{
			{Name: "specialty", Label: "Especialidade", Kind: Text, Required: true, Max: 120},
			{Name: "professional", Label: "Profissional", Kind: Text},
			{Name: "date", Label: "Data", Kind: Date, Required: true},
			{Name: "time", Label: "Horário", Kind: Time},
			{Name: "location", Label: "Local", Kind: Text},
			{Name: "notes", Label: "Notas", Kind: Textarea, Hidden: true},
			{Name: "done", Label: "Realizada", Kind: Bool},
		},
	},
	{
		Name: "medications", Domain: "health", Table: "medications", Title: "Medicamentos", Singular: "medicamento",
		Order: "active DESC, name",
		Fields: []Field{
			{Name: "name", Label: "Nome", Kind: Text, Required: true, Max: 120},
			{Name: "dosage", Label: "Dosagem", Kind: Text},
			{Name: "frequency", Label: "Frequência", Kind: Text},
			{Name: "start_date", Label: "Início", Kind: Date},
			{Name: "end_date", Label: "Fim", Kind: Date},
			{Name: "active", Label: "Em uso", Kind: Bool},
		},
	},
	{
		Name: "care_items", Domain: "health", Table: "care_items", Title: "Cuidados", Singular: "cuidado",
		Order: "done, date, created_at",
		Fields: []Field{
			{Name: "title", Label: "Título", Kind: Text, Required: true, Max: 120},
			{Name: "category", Label: "Categoria", Kind: Text},
			{Name: "date", Label: "Data", Kind: Date},
			{Name: "done", Label: "Feito", Kind: Bool},
			{Name: "notes", Label: "Notas", Kind: Textarea, Hidden: true},
		},
	},

	// travel
	{
		Name: "trips", Domain: "travel", Table: "trips", Title: "Viagens", Singular: "viagem",
		Order: "start_date DESC, created_at DESC",
		Fields: []Field{
			{Name: "destination", Label: "Destino", Kind: Text, Required: true, Max: 120},
			{Name: "start_date", Label: "Ida", Kind: Date},
			{Name: "end_date", Label: "Volta", Kind: Date},
			{Name: "budget_cents", Label: "Orçamento", Kind: Money},
			{Name: "notes", Label: "Notas", Kind: Textarea, Hidden: true},
		},
	},
	{
		Name: "trip_expenses", Domain: "travel", Table: "trip_expenses", Title: "Gastos da viagem", Singular: "gasto",
		Order: "date, created_at", Parent: &Parent{Resource: "trips", Field: "trip_id"},
		Fields: []Field{
			{Name: "trip_id", Kind: Ref, Required: true},
			{Name: "date", Label: "Data", Kind: Date, Required: true},
			{Name: "description", Label: "Descrição", Kind: Text, Required: true},
			{Name: "category", Label: "Categoria", Kind: Text},
			{Name: "amount_cents", Label: "Valor", Kind: Money, Required: true},
		},
	},
	{
		Name: "trip_places", Domain: "travel", Table: "trip_places", Title: "Lugares", Singular: "lugar",
		Order: "visited, name", Parent: &Parent{Resource: "trips", Field: "trip_id"},
		Fields: []Field{
			{Name: "trip_id", Kind: Ref, Required: true},
			{Name: "name", Label: "Nome", Kind: Text, Required: true},
			{Name: "kind", Label: "Tipo", Kind: Text},
			{Name: "address", Label: "Endereço", Kind: Text},
			{Name: "visited", Label: "Visitado", Kind: Bool},
		},
	},

	// home
	{
		Name: "shopping_categories", Domain: "home", Table: "shopping_categories", Title: "Listas de compras", Singular: "lista",
		Order: "name",
		Fields: []Field{
			{Name: "name", Label: "Nome", Kind: Text, Required: true, Max: 80},
		},
	},
	{
		Name: "shopping_items", Domain: "home", Table: "shopping_items", Title: "Itens", Singular: "item",
		Order: "checked, name", Parent: &Parent{Resource: "shopping_categories", Field: "category_id"},
		Fields: []Field{
			{Name: "category_id", Kind: Ref, Required: true},
			{Name: "name", Label: "Item", Kind: Text, Required: true},
			{Name: "quantity", Label: "Quantidade", Kind: Number, Max: 9999},
			{Name: "checked", Label: "Comprado", Kind: Bool},
		},
	},
	{
		Name: "cleaning_tasks", Domain: "home", Table: "cleaning_tasks", Title: "Limpeza", Singular: "tarefa de limpeza",
		Order: "done, room, task",
		Fields: []Field{
			{Name: "room", Label: "Cômodo", Kind: Text, Required: true, Max: 80},
			{Name: "task", Label: "Tarefa", Kind: Text, Required: true},
			{Name: "frequency", Label: "Frequência", Kind: Select, Required: true, Options: frequencies},
			{Name: "last_done", Label: "Última vez", Kind: Date},
			{Name: "done", Label: "Feita", Kind: Bool},
		},
	},
	{
		Name: "chores", Domain: "home", Table: "chores", Title: "Tarefas", Singular: "tarefa",
		Order: "done, due_date = '', due_date",
		Fields: []Field{
			{Name: "title", Label: "Tarefa", Kind: Text, Required: true},
			{Name: "assignee", Label: "Responsável", Kind: Text},
			{Name: "due_date", Label: "Prazo", Kind: Date},
			{Name: "done", Label: "Feita", Kind: Bool},
		},
	},

	// fitness
	{
		Name: "workouts", Domain: "fitness", Table: "workouts", Title: "Treinos", Singular: "treino",
		Order: "date DESC, created_at DESC",
		Fields: []Field{
			{Name: "name", Label: "Treino", Kind: Text, Required: true, Max: 120},
			{Name: "date", Label: "Data", Kind: Date, Required: true},
			{Name: "duration_min", Label: "Duração (min)", Kind: Number, Max: 1440},
			{Name: "notes", Label: "Notas", Kind: Textarea, Hidden: true},
		},
	},
	{
		Name: "workout_exercises", Domain: "fitness", Table: "workout_exercises", Title: "Exercícios", Singular: "exercício",
		Order: "created_at", Parent: &Parent{Resource: "workouts", Field: "workout_id"},
		Fields: []Field{
			{Name: "workout_id", Kind: Ref, Required: true},
			{Name: "name", Label: "Exercício", Kind: Text, Required: true},
			{Name: "sets", Label: "Séries", Kind: Number, Max: 100},
			{Name: "reps", Label: "Repetições", Kind: Number, Max: 1000},
			{Name: "weight_kg", Label: "Carga (kg)", Kind: Decimal},
		},
	},
	{
		Name: "measurements", Domain: "fitness", Table: "measurements", Title: "Medidas", Singular: "medida",
		Order: "date DESC",
		Fields: []Field{
			{Name: "date", Label: "Data", Kind: Date, Required: true},
			{Name: "weight_kg", Label: "Peso (kg)", Kind: Decimal},
			{Name: "body_fat_pct", Label: "Gordura (%)", Kind: Decimal},
			{Name: "waist_cm", Label: "Cintura (cm)", Kind: Decimal},
		},
	},
	{
		Name: "diet_entries", Domain: "fitness", Table: "diet_entries", Title: "Dieta", Singular: "refeição",
		Order: "date DESC, created_at",
		Fields: []Field{
			{Name: "date", Label: "Data", Kind: Date, Required: true},
			{Name: "meal", Label: "Refeição", Kind: Select, Required: true, Options: meals},
			{Name: "description", Label: "Descrição", Kind: Text, Required: true},
			{Name: "calories", Label: "Calorias", Kind: Number, Max: 20000},
		},
	},
	{
		Name: "fitness_care", Domain: "fitness", Table: "fitness_care", Title: "Cuidados", Singular: "cuidado",
		Order: "done, date",
		Fields: []Field{
			{Name: "title", Label: "Título", Kind: Text, Required: true},
			{Name: "date", Label: "Data", Kind: Date},
			{Name: "done", Label: "Feito", Kind: Bool},
		},
	},

	// habits
	{
		Name: "habits", Domain: "habits", Table: "habits", Title: "Hábitos", Singular: "hábito",
		Order: "archived, created_at",
		Fields: []Field{
			{Name: "name", Label: "Hábito", Kind: Text, Required: true, Max: 80},
			{Name: "description", Label: "Descrição", Kind: Textarea, Hidden: true, Max: 500},
			{Name: "color", Label: "Cor", Kind: Text, Max: 20, Placeholder: "#4f46e5"},
			{Name: "target_per_week", Label: "Meta semanal", Kind: Number, Max: 7},
			{Name: "archived", Label: "Arquivado", Kind: Bool},
		},
	},

	// finance
	{
		Name: "budgets", Domain: "finance", Table: "budgets", Title: "Orçamentos", Singular: "orçamento",
		Order: "year DESC, month DESC, category",
		Fields: []Field{
			{Name: "category", Label: "Categoria", Kind: Select, Required: true, Options: categoryOptions()},
			{Name: "year", Label: "Ano", Kind: Number, Required: true, Max: 9999},
			{Name: "month", Label: "Mês", Kind: Select, Required: true, Options: monthOptions()},
			{Name: "limit_cents", Label: "Limite", Kind: Money, Required: true},
		},
	},

	// community
	{
		Name: "events", Domain: "community", Table: "events", Title: "Eventos", Singular: "evento",
		Order: "starts_at",
		Fields: []Field{
			{Name: "title", Label: "Título", Kind: Text, Required: true, Max: 120},
			{Name: "description", Label: "Descrição", Kind: Textarea, Hidden: true},
			{Name: "starts_at", Label: "Quando", Kind: DateTime, Required: true},
			{Name: "location", Label: "Local", Kind: Text},
		},
	},

	// admin
	{
		Name: "plans", Domain: "admin", Table: "plans", Title: "Planos", Singular: "plano",
		Order: "price_cents", Scope: ScopeGlobal, Admin: true,
		Fields: []Field{
			{Name: "code", Label: "Código", Kind: Text, Required: true, Max: 40},
			{Name: "name", Label: "Nome", Kind: Text, Required: true, Max: 80},
			{Name: "price_cents", Label: "Preço", Kind: Money, Required: true},
			{Name: "interval", Label: "Período", Kind: Select, Required: true, Options: intervals},
			{Name: "credits", Label: "Créditos", Kind: Number, Required: true},
			{Name: "active", Label: "Ativo", Kind: Bool},
		},
	},
}

var domains = []Domain{
	{Slug: "study", Title: "Estudos", Resources: []string{"study_items", "exams", "schedule_slots"}},
	{Slug: "health", Title: "Saúde", Resources: []string{"appointments", "medications", "care_items"}},
	{Slug: "travel", Title: "Viagens", Resources: []string{"trips"}},
	{Slug: "home", Title: "Casa", Resources: []string{"shopping_categories", "cleaning_tasks", "chores"}},
	{Slug: "fitness", Title: "Fitness", Resources: []string{"workouts", "measurements", "diet_entries", "fitness_care"}},
}

var (
	indexOnce sync.Once
	byName    map[string]*Definition
)

func index() {
	indexOnce.Do(func() {
		byName = make(map[string]*Definition, len(definitions))
		for _, d := range definitions {
			byName[d.Name] = d
		}
	})
}

// Lookup returns the definition registered under name.
func Lookup(name string) (*Definition, bool) {
	index()
	d, ok := byName[name]
	return d, ok
}

// LookupDomain returns the generic domain page registered under slug.
func LookupDomain(slug string) (Domain, bool) {
	for _, d := range domains {
		if d.Slug == slug {
			return d, true
		}
	}
	return Domain{}, false
}

func Domains() []Domain {
	return domains
}

// Children returns the resources whose parent is name, sorted by name.
func Children(name string) []*Definition {
	var out []*Definition
	for _, d := range definitions {
		if d.Parent != nil && d.Parent.Resource == name {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every registered definition.
func All() []*Definition {
	return definitions
}
