package domain

// Research pairs the two catalog items a research track studies, e.g. a drug and a disease.
type Research struct {
	ID            int64
	PrimaryItem   string
	SecondaryItem string
}

// ResearchFilter narrows a research listing. Empty fields match every row.
type ResearchFilter struct {
	PrimaryItem   string
	SecondaryItem string
}

// Matches reports whether r satisfies every non-empty field of f.
func (f ResearchFilter) Matches(r Research) bool {
	return (f.PrimaryItem == "" || f.PrimaryItem == r.PrimaryItem) &&
		(f.SecondaryItem == "" || f.SecondaryItem == r.SecondaryItem)
}

// EntityType names a kind of catalog entity.
type EntityType struct {
	ID   int64
	Name string
}

// DefaultEntityTypes seeds a fresh catalog, in id order.
var DefaultEntityTypes = []string{"Disease", "Target", "Drug", "Effect"}
