package domain

// SearchCriteria is the parametric query surface Store.SearchEmails builds
// SQL from, per spec.md §4.A. Every pointer/slice field is optional; nil or
// empty means "no predicate for this field".
type SearchCriteria struct {
	UserID         string // "" means legacy non-user-scoped fallback, see DESIGN.md Open Question 2
	Category       string
	CategoryIsNull bool // true selects rows with category IS NULL, per spec.md §4.F "forceRefresh=false"
	Categories     []string
	IDs            []string
	Year           *int
	YearFrom       *int
	YearTo         *int
	SizeMin        *int64
	SizeMax        *int64
	Archived       *bool
	SenderLike     string
	Labels         []string
	HasAttachments *bool
	Query          string // free-text, applied post-query by SearchEngine

	Limit  int
	Offset int
}

// SearchResult is what Store.SearchEmails and SearchEngine.Search return.
type SearchResult struct {
	Emails []EmailIndex
	Total  int
}
