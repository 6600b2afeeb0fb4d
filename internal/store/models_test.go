package store

import (
	"reflect"
	"testing"
)

func TestDocumentChangeTracking(t *testing.T) {
	var doc Document
	if got := doc.ChangedFields(); len(got) != 0 {
		t.Fatalf("ChangedFields() = %v, want none", got)
	}

	doc.SetText("hello")
	doc.SetState([]byte("state"))
	doc.SetState([]byte("state"))

	if !doc.Changed(FieldState) {
		t.Errorf("Changed(%q) = false, want true", FieldState)
	}
	if doc.Changed(FieldTitle) {
		t.Errorf("Changed(%q) = true, want false", FieldTitle)
	}
	if got, want := doc.ChangedFields(), []string{FieldState, FieldText}; !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedFields() = %v, want %v", got, want)
	}

	doc.ClearChanged()
	if got := doc.ChangedFields(); len(got) != 0 {
		t.Errorf("ChangedFields() after clear = %v, want none", got)
	}
}
