package attachments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docdiff/api/internal/store"
)

var (
	idA = uuid.MustParse("5f0c7c1e-8f43-4b7e-9d0a-0c6a7b7e9a11")
	idB = uuid.MustParse("0b9e2a3c-4d5e-4f60-8a71-92b3c4d5e6f7")
	idC = uuid.MustParse("c3d4e5f6-0718-4293-a4b5-c6d7e8f90a1b")
)

type fakeLookup struct {
	mu    sync.Mutex
	items map[uuid.UUID]store.Attachment
	err   error
	teams []string
}

func (f *fakeLookup) GetAttachment(_ context.Context, id uuid.UUID, teamID string) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams = append(f.teams, teamID)
	if f.err != nil {
		return store.Attachment{}, f.err
	}
	att, ok := f.items[id]
	if !ok || att.TeamID != teamID {
		return store.Attachment{}, fmt.Errorf("attachment %s: %w", id, store.ErrNotFound)
	}
	return att, nil
}

type fakeSigner struct{}

func (fakeSigner) SignURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://files.example/%s?X-Amz-Expires=%d&X-Amz-Signature=sig", key, int(expiry.Seconds())), nil
}

func TestFindIDs(t *testing.T) {
	text := `<img src="` + RedirectPath + idA.String() + `">` +
		`<a href="` + RedirectPath + strings.ToUpper(idB.String()) + `">b</a>` +
		`<img src="` + RedirectPath + idA.String() + `">` +
		`<img src="` + RedirectPath + `not-a-uuid">`

	got := FindIDs(text)
	want := []uuid.UUID{idA, idB}
	if len(got) != len(want) {
		t.Fatalf("FindIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FindIDs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSignURLs(t *testing.T) {
	lookup := &fakeLookup{items: map[uuid.UUID]store.Attachment{
		idA: {ID: idA, TeamID: "team-a", Key: "team-a/chart.png"},
		idB: {ID: idB, TeamID: "team-other", Key: "team-other/secret.png"},
	}}
	svc := NewService(lookup, fakeSigner{}, zerolog.Nop())

	fragment := `<p><img src="` + RedirectPath + idA.String() + `"/><img src="` + RedirectPath + idB.String() + `"/>` +
		`<img src="` + RedirectPath + idC.String() + `"/><img src="` + RedirectPath + idA.String() + `"/></p>`

	got, err := svc.SignURLs(context.Background(), fragment, "team-a", time.Minute)
	if err != nil {
		t.Fatalf("SignURLs() error = %v", err)
	}

	signed := `https://files.example/team-a/chart.png?X-Amz-Expires=60&amp;X-Amz-Signature=sig`
	if n := strings.Count(got, signed); n != 2 {
		t.Errorf("signed url count = %d, want 2 in %s", n, got)
	}
	for _, id := range []uuid.UUID{idB, idC} {
		if !strings.Contains(got, RedirectPath+id.String()) {
			t.Errorf("SignURLs() rewrote %s, want it left unsigned", id)
		}
	}
	if len(lookup.teams) != 3 {
		t.Errorf("lookups = %d, want 3", len(lookup.teams))
	}
	for _, team := range lookup.teams {
		if team != "team-a" {
			t.Errorf("lookup team = %q, want team-a", team)
		}
	}
}

func TestSignURLsWithoutReferences(t *testing.T) {
	lookup := &fakeLookup{}
	svc := NewService(lookup, fakeSigner{}, zerolog.Nop())
	got, err := svc.SignURLs(context.Background(), "<p>plain</p>", "team-a", time.Minute)
	if err != nil || got != "<p>plain</p>" {
		t.Errorf("SignURLs() = %q, %v", got, err)
	}
	if len(lookup.teams) != 0 {
		t.Errorf("lookups = %d, want 0", len(lookup.teams))
	}
}

func TestSignURLsLookupFailure(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(&fakeLookup{err: boom}, fakeSigner{}, zerolog.Nop())
	_, err := svc.SignURLs(context.Background(), RedirectPath+idA.String(), "team-a", time.Minute)
	if !errors.Is(err, boom) {
		t.Errorf("SignURLs() error = %v, want %v", err, boom)
	}
}

func TestMinioSigner(t *testing.T) {
	signer, err := NewMinioSigner(MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
		Bucket:    "attachments",
	})
	if err != nil {
		t.Fatalf("NewMinioSigner() error = %v", err)
	}

	got, err := signer.SignURL(context.Background(), "team-a/chart.png", 0)
	if err != nil {
		t.Fatalf("SignURL() error = %v", err)
	}
	for _, want := range []string{"http://localhost:9000/attachments/team-a/chart.png?", "X-Amz-Signature=", "X-Amz-Expires=1"} {
		if !strings.Contains(got, want) {
			t.Errorf("SignURL() = %s, want %q", got, want)
		}
	}
}
