// Package merge applies markdown edits to documents, patching their
// replicated state so concurrent collaborative edits survive.
package merge

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docdiff/api/internal/crdt"
	"docdiff/api/internal/prosemirror"
	"docdiff/api/internal/store"
)

var (
	mergeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "merge",
		Name:      "markdown_total",
		Help:      "Markdown merges by result.",
	}, []string{"result"})

	mergeOps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "merge",
		Name:      "update_ops",
		Help:      "Operations in the update produced by a merge.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	tracer = otel.Tracer("docdiff/api/internal/merge")
)

func init() {
	prometheus.MustRegister(mergeTotal, mergeOps)
}

// Engine merges markdown into documents.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a merge engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "merge").Logger()}
}

// MergeMarkdown sets the text of doc to text, or appends text when appendText
// is set, and patches the replicated state of doc to match as one update.
// Documents without replicated state only get their text updated. doc is
// modified in place and returned; saving it is up to the caller.
//
// Replicated state that cannot be decoded or fails validation yields an error
// wrapping crdt.ErrInvariantViolation. doc is left unchanged in that case and
// must not be saved.
func (e *Engine) MergeMarkdown(ctx context.Context, doc *store.Document, text string, appendText bool) (*store.Document, error) {
	_, span := tracer.Start(ctx, "merge.MergeMarkdown")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", doc.ID), attribute.Bool("append", appendText))

	if appendText {
		text = doc.Text + text
	}

	if len(doc.State) == 0 {
		doc.SetText(text)
		mergeTotal.WithLabelValues("text_only").Inc()
		return doc, nil
	}

	state, ops, err := reconcile(doc.State, text)
	if err != nil {
		mergeTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("merge markdown into %s: %w", doc.ID, err)
	}
	doc.SetText(text)
	doc.SetState(state)

	mergeTotal.WithLabelValues("merged").Inc()
	mergeOps.Observe(float64(ops))
	e.logger.Debug().
		Str("document", doc.ID).
		Int("ops", ops).
		Int("state_bytes", len(state)).
		Msg("merged markdown")
	return doc, nil
}

func reconcile(current []byte, text string) ([]byte, int, error) {
	replica, err := crdt.Decode(current)
	if err != nil {
		return nil, 0, err
	}
	// Validate rejects corrupted state before the fragment is patched.
	if err := replica.Validate(); err != nil {
		return nil, 0, err
	}
	fragment := replica.Fragment(crdt.DefaultFragment)

	tree := prosemirror.ParseMarkdown(text)
	if tree == nil {
		empty := prosemirror.EmptyDoc()
		tree = &empty
	}

	update, err := fragment.Reconcile(*tree)
	if err != nil {
		return nil, 0, err
	}
	ops := 0
	if update != nil {
		decoded, err := crdt.DecodeUpdate(update)
		if err != nil {
			return nil, 0, err
		}
		ops = len(decoded)
	}
	return replica.Encode(), ops, nil
}
