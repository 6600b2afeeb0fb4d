package export

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docdiff/api/internal/content"
)

var tracer = otel.Tracer("docdiff/api/internal/export")

// Service exports document and revision snapshots.
type Service struct {
	logger zerolog.Logger
	pdf    func(ctx context.Context, html, title string) (*Result, error)
	docx   func(ctx context.Context, html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		logger: logger.With().Str("component", "export").Logger(),
		pdf:    exportPDF,
		docx:   exportDOCX,
	}
}

// Export resolves the content of snap and renders it in the requested format.
func (s *Service) Export(ctx context.Context, snap content.Snapshot, format Format) (*Result, error) {
	ctx, span := tracer.Start(ctx, "export.Export")
	defer span.End()
	span.SetAttributes(
		attribute.String("snapshot.kind", snap.Kind().String()),
		attribute.String("snapshot.id", snap.ID()),
		attribute.String("export.format", string(format)),
	)

	tree, err := content.Resolve(snap)
	if err != nil {
		return nil, fmt.Errorf("resolve content: %w", err)
	}
	html, err := RenderHTML(tree, DefaultRenderOptions(snap.Title()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	s.logger.Debug().
		Str("snapshot", snap.ID()).
		Str("format", string(format)).
		Msg("exporting snapshot")

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(snap.Title()) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, snap.Title())
	case FormatDOCX:
		return s.docx(ctx, html, snap.Title())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
