// Package attachments finds attachment references in rendered HTML and
// rewrites them to signed object storage URLs.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docdiff/api/internal/store"
)

// RedirectPath is the unsigned URL under which attachments are referenced.
const RedirectPath = "/api/attachments.redirect?id="

const defaultConcurrency = 8

var redirectPattern = regexp.MustCompile(regexp.QuoteMeta(RedirectPath) + `([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)

var signedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "attachments",
	Name:      "signed_urls_total",
	Help:      "Attachment references by signing result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(signedTotal)
}

// FindIDs returns the distinct attachment IDs referenced in text, in order of
// first appearance.
func FindIDs(text string) []uuid.UUID {
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, m := range redirectPattern.FindAllStringSubmatch(text, -1) {
		id, err := uuid.Parse(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Lookup finds an attachment owned by a team.
type Lookup interface {
	GetAttachment(ctx context.Context, id uuid.UUID, teamID string) (store.Attachment, error)
}

// URLSigner produces a time limited URL for a stored object.
type URLSigner interface {
	SignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Service rewrites attachment references to signed URLs.
type Service struct {
	lookup      Lookup
	signer      URLSigner
	concurrency int
	logger      zerolog.Logger
}

// NewService creates an attachment signing service.
func NewService(lookup Lookup, signer URLSigner, logger zerolog.Logger) *Service {
	return &Service{
		lookup:      lookup,
		signer:      signer,
		concurrency: defaultConcurrency,
		logger:      logger.With().Str("component", "attachments").Logger(),
	}
}

// SignURLs replaces every attachment reference in fragment that belongs to
// teamID with a signed URL. Unknown attachments keep their URL.
func (s *Service) SignURLs(ctx context.Context, fragment, teamID string, expiry time.Duration) (string, error) {
	ids := FindIDs(fragment)
	if len(ids) == 0 {
		return fragment, nil
	}

	var mu sync.Mutex
	signed := make(map[uuid.UUID]string, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			att, err := s.lookup.GetAttachment(gctx, id, teamID)
			if errors.Is(err, store.ErrNotFound) {
				signedTotal.WithLabelValues("missing").Inc()
				s.logger.Debug().Str("attachment", id.String()).Str("team", teamID).Msg("attachment not found")
				return nil
			}
			if err != nil {
				return fmt.Errorf("lookup attachment %s: %w", id, err)
			}
			u, err := s.signer.SignURL(gctx, att.Key, expiry)
			if err != nil {
				return fmt.Errorf("sign attachment %s: %w", id, err)
			}
			signedTotal.WithLabelValues("signed").Inc()
			mu.Lock()
			signed[id] = u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return redirectPattern.ReplaceAllStringFunc(fragment, func(match string) string {
		id, err := uuid.Parse(strings.TrimPrefix(match, RedirectPath))
		if err != nil {
			return match
		}
		if u, ok := signed[id]; ok {
			return html.EscapeString(u)
		}
		return match
	}), nil
}
