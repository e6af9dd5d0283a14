package domain

import "time"

type (
	// Document is the unit stored by every document store adapter.
	// Writing a Document replaces the previous value at (path, ID).
	Document struct {
		ID        string
		Fields    map[string]any
		UpdatedAt time.Time
	}

	// DocumentRef identifies a stored document and its position in a page.
	DocumentRef struct {
		ID        string
		UpdatedAt time.Time
	}

	// Write is one document replacement inside a batch.
	Write struct {
		Path string
		Doc  Document
	}

	// TimeWindow filters documents by UpdatedAt in [From, To).
	// A zero bound is open.
	TimeWindow struct {
		From time.Time
		To   time.Time
	}

	// PageQuery selects up to Limit documents under Path ordered by identity,
	// strictly after the After cursor.
	PageQuery struct {
		Path   string
		After  *DocumentRef
		Limit  int
		Window TimeWindow
	}

	DeleteReport struct {
		Path    string `json:"path"`
		Pages   int    `json:"pages"`
		Deleted int    `json:"deleted"`
	}
)

func (w TimeWindow) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}
