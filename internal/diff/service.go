// Package diff renders the difference between two versions of a document as
// HTML and compacts it for notification emails.
package diff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"

	"docdiff/api/internal/content"
	"docdiff/api/internal/export"
	"docdiff/api/internal/htmldiff"
)

// DefaultSignedURLExpiry applies when signing is requested without an expiry.
const DefaultSignedURLExpiry = 3000 * time.Second

// contentID identifies the element holding the document body in rendered
// HTML.
const contentID = "content"

// ErrMissingContent is returned when rendered HTML has no content element.
var ErrMissingContent = errors.New("rendered html has no content element")

// Options control rendering of a diff.
type Options struct {
	IncludeTitle  bool
	IncludeStyles bool
	Centered      bool
	// SignedURLs rewrites attachment links in the diff to signed URLs valid
	// for SignedURLExpiry.
	SignedURLs      bool
	SignedURLExpiry time.Duration
}

// DefaultOptions includes title and styles, centers the body and does not sign
// URLs.
func DefaultOptions() Options {
	return Options{IncludeTitle: true, IncludeStyles: true, Centered: true}
}

func (o Options) render(title string) export.RenderOptions {
	return export.RenderOptions{
		Title:         title,
		IncludeTitle:  o.IncludeTitle,
		IncludeStyles: o.IncludeStyles,
		Centered:      o.Centered,
	}
}

func (o Options) expiry() time.Duration {
	if o.SignedURLExpiry > 0 {
		return o.SignedURLExpiry
	}
	return DefaultSignedURLExpiry
}

// Signer rewrites attachment URLs in an HTML fragment.
type Signer interface {
	SignURLs(ctx context.Context, fragment, teamID string, expiry time.Duration) (string, error)
}

// Service renders diffs between snapshots.
type Service struct {
	differ htmldiff.Differ
	signer Signer
	teams  content.TeamResolver
	logger zerolog.Logger
}

// NewService creates a diff service. signer may be nil, in which case signing
// is skipped.
func NewService(differ htmldiff.Differ, signer Signer, teams content.TeamResolver, logger zerolog.Logger) *Service {
	return &Service{
		differ: differ,
		signer: signer,
		teams:  teams,
		logger: logger.With().Str("component", "diff").Logger(),
	}
}

// RenderDiffHTML returns a full HTML document showing after with the changes
// since before marked. Without before, after is rendered as is.
func (s *Service) RenderDiffHTML(ctx context.Context, before *content.Snapshot, after content.Snapshot, opts Options) (string, error) {
	start := time.Now()
	defer func() { renderLatency.WithLabelValues("full").Observe(time.Since(start).Seconds()) }()

	ctx, span := tracer.Start(ctx, "diff.RenderDiffHTML")
	defer span.End()
	span.SetAttributes(attribute.String("after.id", after.ID()), attribute.Bool("before.present", before != nil))

	afterHTML, err := render(after, opts)
	if err != nil {
		return "", err
	}
	if before == nil {
		return afterHTML, nil
	}
	beforeHTML, err := render(*before, opts)
	if err != nil {
		return "", err
	}

	shell, beforeRoot, err := parseDocument(beforeHTML)
	if err != nil {
		return "", fmt.Errorf("parse before: %w", err)
	}
	afterShell, afterRoot, err := parseDocument(afterHTML)
	if err != nil {
		return "", fmt.Errorf("parse after: %w", err)
	}
	beforeArticle := article(shell, beforeRoot)
	afterArticle := article(afterShell, afterRoot)

	beforeFragment, err := htmldiff.InnerHTML(beforeArticle)
	if err != nil {
		return "", fmt.Errorf("render before article: %w", err)
	}
	afterFragment, err := htmldiff.InnerHTML(afterArticle)
	if err != nil {
		return "", fmt.Errorf("render after article: %w", err)
	}

	diffed, err := s.differ.DiffHTML(beforeFragment, afterFragment)
	if err != nil {
		return "", fmt.Errorf("diff html: %w", err)
	}

	if opts.SignedURLs && s.signer != nil {
		diffed, err = s.sign(ctx, *before, diffed, opts.expiry())
		if err != nil {
			return "", err
		}
	}

	nodes, err := html.ParseFragment(strings.NewReader(diffed), beforeArticle)
	if err != nil {
		return "", fmt.Errorf("parse diff: %w", err)
	}
	htmldiff.ReplaceChildren(beforeArticle, nodes)

	var buf bytes.Buffer
	if err := html.Render(&buf, shell); err != nil {
		return "", fmt.Errorf("render diff document: %w", err)
	}
	return buf.String(), nil
}

// sign rewrites attachment URLs for the team owning before. A snapshot whose
// team cannot be found is left unsigned.
func (s *Service) sign(ctx context.Context, before content.Snapshot, fragment string, expiry time.Duration) (string, error) {
	teamID, err := before.OwningTeam(ctx, s.teams)
	if err != nil {
		return "", err
	}
	if teamID == "" {
		s.logger.Debug().Str("document", before.DocumentID()).Msg("no owning team, leaving urls unsigned")
		return fragment, nil
	}
	signed, err := s.signer.SignURLs(ctx, fragment, teamID, expiry)
	if err != nil {
		return "", fmt.Errorf("sign urls: %w", err)
	}
	return signed, nil
}

// RenderCompactEmailDiff returns the diff reduced to changed blocks and their
// immediate context. ok is false when before is nil or when the diff carries
// no change markers, which happens for changes the diff engine cannot show.
func (s *Service) RenderCompactEmailDiff(ctx context.Context, before *content.Snapshot, after content.Snapshot, opts Options) (fragment string, ok bool, err error) {
	if before == nil {
		compactOutcomes.WithLabelValues(outcomeNoBefore).Inc()
		return "", false, nil
	}

	start := time.Now()
	defer func() { renderLatency.WithLabelValues("compact").Observe(time.Since(start).Seconds()) }()

	full, err := s.RenderDiffHTML(ctx, before, after, opts)
	if err != nil {
		return "", false, err
	}

	_, span := tracer.Start(ctx, "diff.Compact")
	defer span.End()

	doc, root, err := parseDocument(full)
	if err != nil {
		return "", false, fmt.Errorf("parse diff: %w", err)
	}
	if !htmldiff.HasMarker(root) {
		compactOutcomes.WithLabelValues(outcomeUnrepresented).Inc()
		s.logger.Debug().
			Str("before", before.ID()).
			Str("after", after.ID()).
			Msg("diff has no markers")
		return "", false, nil
	}

	Compact(root)
	compactOutcomes.WithLabelValues(outcomeCompacted).Inc()

	var b strings.Builder
	for _, tag := range []string{"head", "body"} {
		el := htmldiff.FindElement(doc, htmldiff.ByTag(tag))
		if el == nil {
			continue
		}
		inner, err := htmldiff.InnerHTML(el)
		if err != nil {
			return "", false, fmt.Errorf("render %s: %w", tag, err)
		}
		b.WriteString(inner)
	}
	return b.String(), true, nil
}

func render(s content.Snapshot, opts Options) (string, error) {
	tree, err := content.Resolve(s)
	if err != nil {
		return "", err
	}
	out, err := export.RenderHTML(tree, opts.render(s.Title()))
	if err != nil {
		return "", fmt.Errorf("render %s %s: %w", s.Kind(), s.ID(), err)
	}
	return out, nil
}

// article returns the element holding the title and the content root of a
// rendered document, or the content root when there is none.
func article(doc, root *html.Node) *html.Node {
	if el := htmldiff.FindElement(doc, htmldiff.ByTag("article")); el != nil {
		return el
	}
	return root
}

func parseDocument(s string) (*html.Node, *html.Node, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, nil, err
	}
	root := htmldiff.FindElement(doc, htmldiff.ByID(contentID))
	if root == nil {
		return nil, nil, ErrMissingContent
	}
	return doc, root, nil
}
