package diff

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docdiff/api/internal/content"
	"docdiff/api/internal/export"
	"docdiff/api/internal/htmldiff"
	"docdiff/api/internal/store"
)

type fakeTeams map[string]string

func (f fakeTeams) DocumentTeamID(_ context.Context, documentID string) (string, error) {
	team, ok := f[documentID]
	if !ok {
		return "", fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	return team, nil
}

type fakeSigner struct {
	teams  []string
	expiry time.Duration
}

func (f *fakeSigner) SignURLs(_ context.Context, fragment, teamID string, expiry time.Duration) (string, error) {
	f.teams = append(f.teams, teamID)
	f.expiry = expiry
	return strings.ReplaceAll(fragment, "/api/attachments.redirect?id=", "https://files.example/signed/"), nil
}

// passthrough reports after unchanged, as the engine does for changes it
// cannot represent.
type passthrough struct{}

func (passthrough) DiffHTML(_, after string) (string, error) {
	return after, nil
}

func newTestService(differ htmldiff.Differ, signer Signer) *Service {
	return NewService(differ, signer, fakeTeams{"doc-1": "team-a"}, zerolog.Nop())
}

func revision(id, title, text string) content.Snapshot {
	return content.FromRevision(&store.Revision{ID: id, DocumentID: "doc-1", Title: title, Text: text})
}

func TestRenderDiffHTMLWithoutBefore(t *testing.T) {
	svc := newTestService(htmldiff.New(), nil)
	after := revision("r1", "Notes", "First version with **bold** text")

	got, err := svc.RenderDiffHTML(context.Background(), nil, after, DefaultOptions())
	if err != nil {
		t.Fatalf("RenderDiffHTML() error = %v", err)
	}
	tree, err := content.Resolve(after)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want, err := export.RenderHTML(tree, export.DefaultRenderOptions("Notes"))
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	if got != want {
		t.Errorf("RenderDiffHTML(nil) = %s, want %s", got, want)
	}
	if strings.Contains(got, htmldiff.OperationIndexAttr) {
		t.Errorf("RenderDiffHTML(nil) carries diff markers")
	}
}

func TestRenderDiffHTML(t *testing.T) {
	svc := newTestService(htmldiff.New(), nil)
	before := revision("r1", "Before title", "Alpha\n\nBeta")
	after := revision("r2", "After title", "Alpha\n\nBeta gamma")

	got, err := svc.RenderDiffHTML(context.Background(), &before, after, DefaultOptions())
	if err != nil {
		t.Fatalf("RenderDiffHTML() error = %v", err)
	}
	for _, want := range []string{
		`<h1 class="title"><del data-operation-index="0">Before</del><ins data-operation-index="0">After</ins> title</h1>`,
		`<div id="content" class="ProseMirror">`,
		`<ins data-operation-index="1">`,
		"gamma",
		"<style>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderDiffHTML() missing %q in %s", want, got)
		}
	}
}

func TestRenderDiffHTMLTitleChange(t *testing.T) {
	svc := newTestService(htmldiff.New(), nil)

	t.Run("title only", func(t *testing.T) {
		before := revision("r1", "Old name", "Same body")
		after := revision("r2", "New name", "Same body")

		got, err := svc.RenderDiffHTML(context.Background(), &before, after, DefaultOptions())
		if err != nil {
			t.Fatalf("RenderDiffHTML() error = %v", err)
		}
		want := `<del data-operation-index="0">Old</del><ins data-operation-index="0">New</ins> name`
		if !strings.Contains(got, want) {
			t.Errorf("RenderDiffHTML() = %s, want title change %s", got, want)
		}
	})

	t.Run("title and body", func(t *testing.T) {
		before := revision("r1", "Old name", "Alpha\n\nBeta")
		after := revision("r2", "New name", "Alpha changed\n\nBeta")

		got, ok, err := svc.RenderCompactEmailDiff(context.Background(), &before, after, DefaultOptions())
		if err != nil || !ok {
			t.Fatalf("RenderCompactEmailDiff() = %v, %v, want result", ok, err)
		}
		for _, want := range []string{`<ins data-operation-index="0">New</ins>`, "changed"} {
			if !strings.Contains(got, want) {
				t.Errorf("RenderCompactEmailDiff() missing %q in %s", want, got)
			}
		}
	})
}

func TestRenderDiffHTMLSignsURLs(t *testing.T) {
	const image = "![chart](/api/attachments.redirect?id=5f0c7c1e-8f43-4b7e-9d0a-0c6a7b7e9a11)"
	opts := DefaultOptions()
	opts.SignedURLs = true

	t.Run("team of before document", func(t *testing.T) {
		signer := &fakeSigner{}
		svc := newTestService(htmldiff.New(), signer)
		before := content.FromDocument(&store.Document{ID: "doc-2", TeamID: "team-b", Text: "Intro"})
		after := revision("r2", "", "Intro\n\n"+image)

		got, err := svc.RenderDiffHTML(context.Background(), &before, after, opts)
		if err != nil {
			t.Fatalf("RenderDiffHTML() error = %v", err)
		}
		if len(signer.teams) != 1 || signer.teams[0] != "team-b" {
			t.Errorf("signed for teams %v, want [team-b]", signer.teams)
		}
		if signer.expiry != DefaultSignedURLExpiry {
			t.Errorf("expiry = %v, want %v", signer.expiry, DefaultSignedURLExpiry)
		}
		if !strings.Contains(got, "https://files.example/signed/") {
			t.Errorf("RenderDiffHTML() = %s, want signed url", got)
		}
	})

	t.Run("no owning team leaves urls unsigned", func(t *testing.T) {
		signer := &fakeSigner{}
		svc := newTestService(htmldiff.New(), signer)
		before := content.FromRevision(&store.Revision{ID: "r1", DocumentID: "doc-gone", Text: "Intro"})
		after := revision("r2", "", "Intro\n\n"+image)

		got, err := svc.RenderDiffHTML(context.Background(), &before, after, opts)
		if err != nil {
			t.Fatalf("RenderDiffHTML() error = %v", err)
		}
		if len(signer.teams) != 0 {
			t.Errorf("signed for teams %v, want none", signer.teams)
		}
		if !strings.Contains(got, "/api/attachments.redirect?id=") {
			t.Errorf("RenderDiffHTML() = %s, want unsigned url", got)
		}
	})
}

func TestRenderCompactEmailDiff(t *testing.T) {
	svc := newTestService(htmldiff.New(), nil)
	before := revision("r1", "Notes", "Intro\n\n## Heading\n\nAlpha\n\nBeta\n\nGamma\n\nDelta")
	after := revision("r2", "Notes", "Intro\n\n## Heading\n\nAlpha changed\n\nBeta\n\nGamma\n\nDelta")

	got, ok, err := svc.RenderCompactEmailDiff(context.Background(), &before, after, DefaultOptions())
	if err != nil {
		t.Fatalf("RenderCompactEmailDiff() error = %v", err)
	}
	if !ok {
		t.Fatal("RenderCompactEmailDiff() ok = false, want true")
	}
	for _, want := range []string{"changed", "<p>Beta</p>", "<style>"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderCompactEmailDiff() missing %q in %s", want, got)
		}
	}
	for _, dropped := range []string{"Intro", "Heading", "Gamma", "Delta", "<html", "<body"} {
		if strings.Contains(got, dropped) {
			t.Errorf("RenderCompactEmailDiff() contains %q in %s", dropped, got)
		}
	}
}

func TestRenderCompactEmailDiffNoResult(t *testing.T) {
	after := revision("r2", "Notes", "Some **bold** words")

	t.Run("no before", func(t *testing.T) {
		svc := newTestService(htmldiff.New(), nil)
		got, ok, err := svc.RenderCompactEmailDiff(context.Background(), nil, after, DefaultOptions())
		if err != nil || ok || got != "" {
			t.Errorf("RenderCompactEmailDiff(nil) = %q, %v, %v, want no result", got, ok, err)
		}
	})

	t.Run("diff without markers", func(t *testing.T) {
		svc := newTestService(passthrough{}, nil)
		before := revision("r1", "Notes", "Some _bold_ words")
		got, ok, err := svc.RenderCompactEmailDiff(context.Background(), &before, after, DefaultOptions())
		if err != nil || ok || got != "" {
			t.Errorf("RenderCompactEmailDiff() = %q, %v, %v, want no result", got, ok, err)
		}
	})
}
