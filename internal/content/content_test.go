package content

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"docdiff/api/internal/crdt"
	"docdiff/api/internal/prosemirror"
	"docdiff/api/internal/store"
)

type fakeTeams struct {
	teams map[string]string
	err   error
	calls int
}

func (f *fakeTeams) DocumentTeamID(_ context.Context, documentID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	team, ok := f.teams[documentID]
	if !ok {
		return "", fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	return team, nil
}

func TestResolvePrefersReplicatedState(t *testing.T) {
	stateTree := *prosemirror.ParseMarkdown("# From state\n\nCollaborative text.")
	state, err := crdt.FromTree(stateTree)
	if err != nil {
		t.Fatalf("FromTree() error = %v", err)
	}

	doc := &store.Document{ID: "doc-1", Text: "Markup that disagrees with the state.", State: state}
	got, err := Resolve(FromDocument(doc))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !prosemirror.Equal(got, stateTree) {
		t.Errorf("Resolve() = %s, want %s", prosemirror.Fingerprint(got), prosemirror.Fingerprint(stateTree))
	}
}

func TestResolveParsesMarkupWithoutState(t *testing.T) {
	tests := []struct {
		name string
		text string
		want prosemirror.Node
	}{
		{
			name: "markdown",
			text: "Hello **there**",
			want: *prosemirror.ParseMarkdown("Hello **there**"),
		},
		{
			name: "blank text resolves to empty root",
			text: "  \n",
			want: prosemirror.EmptyDoc(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev := &store.Revision{ID: "rev-1", DocumentID: "doc-1", Text: tt.text}
			got, err := Resolve(FromRevision(rev))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !prosemirror.Equal(got, tt.want) {
				t.Errorf("Resolve() = %s, want %s", prosemirror.Fingerprint(got), prosemirror.Fingerprint(tt.want))
			}
		})
	}
}

func TestResolveCorruptState(t *testing.T) {
	doc := &store.Document{ID: "doc-1", State: []byte{0x0a, 0xff}}
	if _, err := Resolve(FromDocument(doc)); !errors.Is(err, crdt.ErrMalformedState) {
		t.Errorf("Resolve() error = %v, want %v", err, crdt.ErrMalformedState)
	}
}

func TestOwningTeam(t *testing.T) {
	teams := &fakeTeams{teams: map[string]string{"doc-1": "team-a"}}
	ctx := context.Background()

	doc := FromDocument(&store.Document{ID: "doc-1", TeamID: "team-direct"})
	if got, err := doc.OwningTeam(ctx, teams); err != nil || got != "team-direct" {
		t.Errorf("document OwningTeam() = %q, %v, want team-direct", got, err)
	}
	if teams.calls != 0 {
		t.Errorf("resolver calls = %d, want 0", teams.calls)
	}

	withParent := FromRevision(&store.Revision{ID: "r1", DocumentID: "doc-1", Document: &store.Document{TeamID: "team-parent"}})
	if got, _ := withParent.OwningTeam(ctx, teams); got != "team-parent" {
		t.Errorf("revision with document OwningTeam() = %q, want team-parent", got)
	}

	detached := FromRevision(&store.Revision{ID: "r2", DocumentID: "doc-1"})
	if got, _ := detached.OwningTeam(ctx, teams); got != "team-a" {
		t.Errorf("detached revision OwningTeam() = %q, want team-a", got)
	}

	orphan := FromRevision(&store.Revision{ID: "r3", DocumentID: "doc-gone"})
	if got, err := orphan.OwningTeam(ctx, teams); err != nil || got != "" {
		t.Errorf("orphan OwningTeam() = %q, %v, want empty without error", got, err)
	}

	teams.err = errors.New("connection refused")
	if _, err := detached.OwningTeam(ctx, teams); err == nil {
		t.Errorf("OwningTeam() with failing resolver error = nil, want error")
	}
}

func TestSnapshotAccessors(t *testing.T) {
	rev := FromRevision(&store.Revision{ID: "r1", DocumentID: "d1", Title: "T", Text: "x", State: []byte{1}})
	if rev.Kind() != KindRevision || rev.ID() != "r1" || rev.DocumentID() != "d1" {
		t.Errorf("revision snapshot = %v/%s/%s", rev.Kind(), rev.ID(), rev.DocumentID())
	}
	if rev.Title() != "T" || rev.Markup() != "x" || len(rev.ReplicatedState()) != 1 {
		t.Errorf("revision fields not carried: %q %q %v", rev.Title(), rev.Markup(), rev.ReplicatedState())
	}
	doc := FromDocument(&store.Document{ID: "d1"})
	if doc.Kind() != KindDocument || doc.DocumentID() != "d1" {
		t.Errorf("document snapshot = %v/%s", doc.Kind(), doc.DocumentID())
	}
}
