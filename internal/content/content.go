// Package content resolves the canonical content tree of a document or one of
// its revisions.
package content

import (
	"context"
	"errors"
	"fmt"

	"docdiff/api/internal/crdt"
	"docdiff/api/internal/prosemirror"
	"docdiff/api/internal/store"
)

// Kind identifies the variant behind a Snapshot.
type Kind int

const (
	KindDocument Kind = iota + 1
	KindRevision
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindRevision:
		return "revision"
	default:
		return "unknown"
	}
}

// TeamResolver finds the team owning a document.
type TeamResolver interface {
	DocumentTeamID(ctx context.Context, documentID string) (string, error)
}

// Snapshot is a read-only view of a document or a revision. Callers read it
// through its accessors and never branch on the variant.
type Snapshot struct {
	kind       Kind
	id         string
	documentID string
	title      string
	text       string
	state      []byte
	teamID     string
}

// FromDocument captures the current fields of a document.
func FromDocument(doc *store.Document) Snapshot {
	return Snapshot{
		kind:       KindDocument,
		id:         doc.ID,
		documentID: doc.ID,
		title:      doc.Title,
		text:       doc.Text,
		state:      doc.State,
		teamID:     doc.TeamID,
	}
}

// FromRevision captures a revision. Its team comes from the back-referenced
// document when that is loaded.
func FromRevision(rev *store.Revision) Snapshot {
	s := Snapshot{
		kind:       KindRevision,
		id:         rev.ID,
		documentID: rev.DocumentID,
		title:      rev.Title,
		text:       rev.Text,
		state:      rev.State,
	}
	if rev.Document != nil {
		s.teamID = rev.Document.TeamID
	}
	return s
}

// Kind reports whether s is a document or a revision.
func (s Snapshot) Kind() Kind {
	return s.kind
}

// ID is the document or revision identifier.
func (s Snapshot) ID() string {
	return s.id
}

// DocumentID is the owning document, or the document itself.
func (s Snapshot) DocumentID() string {
	return s.documentID
}

func (s Snapshot) Title() string {
	return s.title
}

// Markup is the markdown text.
func (s Snapshot) Markup() string {
	return s.text
}

// ReplicatedState is the CRDT state, nil when the content was never edited
// collaboratively.
func (s Snapshot) ReplicatedState() []byte {
	return s.state
}

// OwningTeam returns the owning team, asking teams when the snapshot does not
// carry it. An empty result means no team could be resolved.
func (s Snapshot) OwningTeam(ctx context.Context, teams TeamResolver) (string, error) {
	if s.teamID != "" || teams == nil || s.documentID == "" {
		return s.teamID, nil
	}
	teamID, err := teams.DocumentTeamID(ctx, s.documentID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve team of %s %s: %w", s.kind, s.id, err)
	}
	return teamID, nil
}

// Resolve returns the content tree of s. Replicated state is authoritative when
// present and the markup is not consulted; otherwise the markup is parsed and a
// document without parsable markup resolves to an empty root.
func Resolve(s Snapshot) (prosemirror.Node, error) {
	if len(s.state) > 0 {
		doc, err := crdt.Decode(s.state)
		if err != nil {
			return prosemirror.Node{}, fmt.Errorf("decode state of %s %s: %w", s.kind, s.id, err)
		}
		return doc.Fragment(crdt.DefaultFragment).ToTree(), nil
	}

	if tree := prosemirror.ParseMarkdown(s.text); tree != nil {
		return *tree, nil
	}
	return prosemirror.EmptyDoc(), nil
}
