package resource

import (
	"ordem/internal/storage"
)

// Scope decides who owns the rows of a resource.
type Scope int

const (
	// ScopeOwner rows belong to one user and are only visible to them.
	ScopeOwner Scope = iota
	// ScopeGlobal rows are shared. Only admins may write them.
	ScopeGlobal
)

// Parent links a child resource to the record it hangs off.
type Parent struct {
	Resource string
	Field    string
}

// Definition declares one CRUD surface: the table, its fields and how the
// table is ordered and scoped.
type Definition struct {
	Name   string
	Domain string
	Table  string
	Title  string
	// Singular is used in modal titles ("Nova consulta").
	Singular string
	Fields   []Field
	Order    string
	Parent   *Parent
	Scope    Scope
	Admin    bool
}

func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns lists the fields shown in the table view.
func (d *Definition) Columns() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Hidden || f.Kind == Ref {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Toggles lists the bool fields that can be flipped from the table.
func (d *Definition) Toggles() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Kind == Bool {
			out = append(out, f)
		}
	}
	return out
}

// StorageTable maps the definition onto the generic row API.
func (d *Definition) StorageTable() storage.Table {
	t := storage.Table{Name: d.Table, Owned: d.Scope == ScopeOwner, OrderBy: d.Order}
	for _, f := range d.Fields {
		t.Columns = append(t.Columns, storage.Column{Name: f.Name, Kind: columnKind(f.Kind)})
	}
	return t
}

func columnKind(k Kind) storage.ColumnKind {
	switch k {
	case Number, Money:
		return storage.ColInt
	case Decimal:
		return storage.ColReal
	case Bool:
		return storage.ColBool
	default:
		return storage.ColText
	}
}
