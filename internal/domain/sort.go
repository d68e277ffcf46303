package domain

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// Sort captures ordering preferences for listings.
type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Normalized returns the direction defaulted to ascending.
func (s Sort) Normalized() SortDirection {
	if s.Direction == SortDirectionDesc {
		return SortDirectionDesc
	}
	return SortDirectionAsc
}
