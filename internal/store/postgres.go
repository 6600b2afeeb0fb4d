package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, title, text, state, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.TeamID, &item.Title, &item.Text, &item.State, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item *Document) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, team_id, title, text, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, item.ID, item.TeamID, item.Title, item.Text, item.State).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	item.ClearChanged()
	return nil
}

// SaveDocument writes a modified document. Title, text and state are written
// by one statement so text and replicated state never diverge; a document
// without changes is not written.
func (s *PostgresStore) SaveDocument(ctx context.Context, item *Document) error {
	if len(item.ChangedFields()) == 0 {
		return nil
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title=$2, text=$3, state=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, item.ID, item.Title, item.Text, item.State).Scan(&item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", item.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	item.ClearChanged()
	return nil
}

// DocumentTeamID returns the team that owns a document.
func (s *PostgresStore) DocumentTeamID(ctx context.Context, documentID string) (string, error) {
	var teamID string
	err := s.db.QueryRowContext(ctx, `SELECT team_id FROM documents WHERE id=$1`, documentID).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read document team: %w", err)
	}
	return teamID, nil
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) error {
	var documentID any
	if item.DocumentID != "" {
		documentID = item.DocumentID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, team_id, document_id, key, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.TeamID, documentID, item.Key, item.ContentType, item.Size)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// GetAttachment finds an attachment owned by teamID.
func (s *PostgresStore) GetAttachment(ctx context.Context, id uuid.UUID, teamID string) (Attachment, error) {
	var item Attachment
	var documentID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, document_id, key, content_type, size, created_at
		FROM attachments
		WHERE id=$1 AND team_id=$2
	`, id, teamID).Scan(&item.ID, &item.TeamID, &documentID, &item.Key, &item.ContentType, &item.Size, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	item.DocumentID = documentID.String
	return item, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
