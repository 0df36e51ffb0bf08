package model

// Page is one page of a paginated listing. Next is 0 on the last page;
// Last is 0 when the server did not report it.
type Page[T any] struct {
	Items []T
	Next  int
	Last  int
}
