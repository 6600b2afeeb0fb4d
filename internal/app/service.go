package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docdiff/api/internal/cache"
	"docdiff/api/internal/config"
	"docdiff/api/internal/content"
	"docdiff/api/internal/diff"
	"docdiff/api/internal/email"
	"docdiff/api/internal/export"
	"docdiff/api/internal/gitrepo"
	"docdiff/api/internal/merge"
	"docdiff/api/internal/observability"
	"docdiff/api/internal/store"
)

const defaultHistoryLimit = 50

type documentStore interface {
	GetDocument(context.Context, string) (*store.Document, error)
	SaveDocument(context.Context, *store.Document) error
	DocumentTeamID(context.Context, string) (string, error)
	Ping(context.Context) error
}

type revisionStore interface {
	CommitRevision(documentID string, content gitrepo.Content, author, message string) (*store.Revision, error)
	GetRevision(documentID, revisionID string) (*store.Revision, error)
	LatestRevision(documentID string) (*store.Revision, error)
	PreviousRevision(documentID, revisionID string) (*store.Revision, error)
	History(documentID string, limit int) ([]*store.Revision, error)
}

type diffCache interface {
	Get(ctx context.Context, documentID, fromID, toID string) (cache.Entry, bool, error)
	Set(ctx context.Context, documentID, fromID, toID string, entry cache.Entry) error
	Invalidate(ctx context.Context, documentID string) error
}

type notifier interface {
	IsConfigured() bool
	SendDocumentUpdated(ctx context.Context, to []string, update email.DocumentUpdate) error
}

type exporter interface {
	Export(ctx context.Context, snap content.Snapshot, format export.Format) (*export.Result, error)
}

// Dependencies are the collaborators of a Service. Cache may be nil.
type Dependencies struct {
	Store    documentStore
	Git      revisionStore
	Diffs    *diff.Service
	Merger   *merge.Engine
	Cache    diffCache
	Mailer   notifier
	Exporter exporter
}

type Service struct {
	cfg      config.Config
	store    documentStore
	git      revisionStore
	diffs    *diff.Service
	merger   *merge.Engine
	cache    diffCache
	mailer   notifier
	exporter exporter
	logger   zerolog.Logger
}

func New(cfg config.Config, deps Dependencies, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		git:      deps.Git,
		diffs:    deps.Diffs,
		merger:   deps.Merger,
		cache:    deps.Cache,
		mailer:   deps.Mailer,
		exporter: deps.Exporter,
		logger:   logger.With().Str("component", "app").Logger(),
	}
}

type MarkdownInput struct {
	Text    string `json:"text"`
	Append  bool   `json:"append"`
	Author  string `json:"author"`
	Message string `json:"message"`
}

type NotifyInput struct {
	To    []string `json:"to"`
	From  string   `json:"from"`
	Rev   string   `json:"rev"`
	Actor string   `json:"actor"`
}

// EmailDiff is the compact diff between two snapshots of a document. OK is
// false when there is nothing to show.
type EmailDiff struct {
	HTML     string
	OK       bool
	Title    string
	BeforeID string
	AfterID  string
}

// snapshotPair is what a diff compares. Pairs of two revisions never change,
// so only those are cached.
type snapshotPair struct {
	before    *content.Snapshot
	after     content.Snapshot
	cacheable bool
}

// resolvePair loads the snapshots to compare. An empty toID means the live
// document. An empty fromID means the revision before toID, or the latest
// revision when comparing against the live document.
func (s *Service) resolvePair(ctx context.Context, documentID, fromID, toID string) (snapshotPair, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return snapshotPair{}, err
	}

	var pair snapshotPair
	var afterRev *store.Revision
	if toID == "" {
		pair.after = content.FromDocument(doc)
	} else {
		afterRev, err = s.git.GetRevision(documentID, toID)
		if err != nil {
			return snapshotPair{}, err
		}
		afterRev.Document = doc
		pair.after = content.FromRevision(afterRev)
	}

	var beforeRev *store.Revision
	switch {
	case fromID != "":
		beforeRev, err = s.git.GetRevision(documentID, fromID)
	case afterRev != nil:
		beforeRev, err = s.git.PreviousRevision(documentID, afterRev.ID)
	default:
		beforeRev, err = s.git.LatestRevision(documentID)
		if errors.Is(err, store.ErrNotFound) {
			beforeRev, err = nil, nil
		}
	}
	if err != nil {
		return snapshotPair{}, err
	}
	if beforeRev != nil {
		beforeRev.Document = doc
		before := content.FromRevision(beforeRev)
		pair.before = &before
	}
	pair.cacheable = afterRev != nil && beforeRev != nil
	return pair, nil
}

func (s *Service) diffOptions(signed bool) diff.Options {
	opts := diff.DefaultOptions()
	opts.SignedURLs = signed
	opts.SignedURLExpiry = s.cfg.SignedURLExpiry
	return opts
}

// DiffHTML renders a full HTML document with the changes between two
// snapshots of a document marked.
func (s *Service) DiffHTML(ctx context.Context, documentID, fromID, toID string, signed bool) (string, error) {
	pair, err := s.resolvePair(ctx, documentID, fromID, toID)
	if err != nil {
		return "", err
	}
	return s.diffs.RenderDiffHTML(ctx, pair.before, pair.after, s.diffOptions(signed))
}

// CompactEmailDiff returns the compact diff used in notification emails.
// Results for revision pairs, including empty ones, are cached.
func (s *Service) CompactEmailDiff(ctx context.Context, documentID, fromID, toID string) (EmailDiff, error) {
	pair, err := s.resolvePair(ctx, documentID, fromID, toID)
	if err != nil {
		return EmailDiff{}, err
	}
	result := EmailDiff{Title: pair.after.Title(), AfterID: pair.after.ID()}
	if pair.before != nil {
		result.BeforeID = pair.before.ID()
	}
	logger := observability.LoggerWithTrace(ctx, s.logger)

	useCache := pair.cacheable && s.cache != nil
	if useCache {
		entry, found, err := s.cache.Get(ctx, documentID, result.BeforeID, result.AfterID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("document", documentID).Msg("diff cache read failed")
		case found:
			result.HTML, result.OK = entry.HTML, !entry.Empty
			return result, nil
		}
	}

	fragment, ok, err := s.diffs.RenderCompactEmailDiff(ctx, pair.before, pair.after, s.diffOptions(true))
	if err != nil {
		return EmailDiff{}, err
	}
	result.HTML, result.OK = fragment, ok

	if useCache {
		entry := cache.Entry{HTML: fragment, Empty: !ok}
		if err := s.cache.Set(ctx, documentID, result.BeforeID, result.AfterID, entry); err != nil {
			logger.Warn().Err(err).Str("document", documentID).Msg("diff cache write failed")
		}
	}
	return result, nil
}

// ApplyMarkdown merges markdown into a document, saves it and records a
// revision.
func (s *Service) ApplyMarkdown(ctx context.Context, documentID string, input MarkdownInput) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.merger.MergeMarkdown(ctx, doc, input.Text, input.Append); err != nil {
		return nil, err
	}
	changed := doc.ChangedFields()
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	author := strings.TrimSpace(input.Author)
	if author == "" {
		author = "docdiff"
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = "Update markdown"
	}
	rev, err := s.git.CommitRevision(doc.ID, gitrepo.ContentOf(doc), author, message)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, doc.ID); err != nil {
			s.logger.Warn().Err(err).Str("document", doc.ID).Msg("diff cache invalidation failed")
		}
	}
	s.logger.Info().Str("document", doc.ID).Str("revision", rev.ID).Strs("changed", changed).Msg("markdown applied")

	return map[string]any{
		"id":         doc.ID,
		"title":      doc.Title,
		"text":       doc.Text,
		"revisionId": rev.ID,
		"changed":    changed,
		"updatedAt":  doc.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// NotifyUpdate emails recipients about a change, embedding the compact diff
// when there is one.
func (s *Service) NotifyUpdate(ctx context.Context, documentID string, input NotifyInput) (map[string]any, error) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return nil, email.ErrNotConfigured
	}
	recipients := make([]string, 0, len(input.To))
	for _, to := range input.To {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	if len(recipients) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "at least one recipient is required", nil)
	}

	result, err := s.CompactEmailDiff(ctx, documentID, input.From, input.Rev)
	if err != nil {
		return nil, err
	}
	update := email.DocumentUpdate{
		Title:    result.Title,
		URL:      s.documentURL(documentID),
		Actor:    input.Actor,
		DiffHTML: result.HTML,
		HasDiff:  result.OK,
	}
	if input.Rev != "" {
		update.RevisionID = result.AfterID
	}
	if err := s.mailer.SendDocumentUpdated(ctx, recipients, update); err != nil {
		return nil, err
	}
	return map[string]any{"sent": len(recipients), "hasDiff": result.OK}, nil
}

// Export renders the live document, or revisionID when set, in format.
func (s *Service) Export(ctx context.Context, documentID, revisionID, format string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	snap := content.FromDocument(doc)
	if revisionID != "" {
		rev, err := s.git.GetRevision(documentID, revisionID)
		if err != nil {
			return nil, err
		}
		rev.Document = doc
		snap = content.FromRevision(rev)
	}
	return s.exporter.Export(ctx, snap, f)
}

// History lists the revisions of a document, newest first.
func (s *Service) History(ctx context.Context, documentID string, limit int) ([]map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	revisions, err := s.git.History(documentID, limit)
	if errors.Is(err, store.ErrNotFound) {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(revisions))
	for _, rev := range revisions {
		items = append(items, map[string]any{
			"id":        rev.ID,
			"title":     rev.Title,
			"author":    rev.AuthorName,
			"message":   rev.Message,
			"createdAt": rev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) documentURL(documentID string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/documents/" + url.PathEscape(documentID)
}
