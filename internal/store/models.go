package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Document fields tracked for change detection.
const (
	FieldTitle = "title"
	FieldText  = "text"
	FieldState = "state"
)

// Document is the live, editable document. Text holds markdown; State holds
// the replicated CRDT state when the document is edited collaboratively.
type Document struct {
	ID        string
	TeamID    string
	Title     string
	Text      string
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time

	changed map[string]bool
}

// SetTitle updates the title and marks it changed.
func (d *Document) SetTitle(title string) {
	d.Title = title
	d.MarkChanged(FieldTitle)
}

// SetText updates the markdown text and marks it changed.
func (d *Document) SetText(text string) {
	d.Text = text
	d.MarkChanged(FieldText)
}

// SetState replaces the replicated state and marks it changed. Byte slices are
// not compared, so the mark is what makes the write happen.
func (d *Document) SetState(state []byte) {
	d.State = state
	d.MarkChanged(FieldState)
}

// MarkChanged flags a field for the next save.
func (d *Document) MarkChanged(field string) {
	if d.changed == nil {
		d.changed = make(map[string]bool)
	}
	d.changed[field] = true
}

// Changed reports whether field was modified since the last save.
func (d *Document) Changed(field string) bool {
	return d.changed[field]
}

// ChangedFields lists modified fields in sorted order.
func (d *Document) ChangedFields() []string {
	fields := make([]string, 0, len(d.changed))
	for f := range d.changed {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// ClearChanged resets change tracking after a save.
func (d *Document) ClearChanged() {
	d.changed = nil
}

// Revision is an immutable snapshot of a document.
type Revision struct {
	ID         string
	DocumentID string
	Title      string
	Text       string
	State      []byte
	AuthorName string
	Message    string
	CreatedAt  time.Time

	// Document is the owning document when it has been loaded.
	Document *Document
}

// Attachment is an uploaded file stored in the object store under Key.
type Attachment struct {
	ID          uuid.UUID
	TeamID      string
	DocumentID  string
	Key         string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}
