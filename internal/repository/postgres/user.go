package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// UserStore implements repository.UserStore with each record kept as one
// JSONB document.
type UserStore struct {
	db database.DBTX
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(db database.DBTX) *UserStore {
	return &UserStore{db: db}
}

// FetchUser loads the document for userID.
func (s *UserStore) FetchUser(ctx context.Context, userID string) (rec domain.UserRecord, err error) {
	query := `SELECT document FROM user_records WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "FetchUser", query)
	defer func() { end(err) }()

	var doc []byte
	if err := s.db.QueryRow(ctx, query, userID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("select user record: %w", err)
	}

	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode user record %s: %w", userID, err)
	}
	return rec, nil
}

// ReplaceUser overwrites the document for userID.
func (s *UserStore) ReplaceUser(ctx context.Context, userID string, record domain.UserRecord) (err error) {
	query := `
		UPDATE user_records
		SET document = $2, updated_at = NOW()
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ReplaceUser", query)
	defer func() { end(err) }()

	return s.update(ctx, query, userID, record)
}

// PatchUser merges the given top-level fields into the document for userID.
func (s *UserStore) PatchUser(ctx context.Context, userID string, fields domain.UserRecord) (err error) {
	query := `
		UPDATE user_records
		SET document = document || $2::jsonb, updated_at = NOW()
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "PatchUser", query)
	defer func() { end(err) }()

	return s.update(ctx, query, userID, fields)
}

func (s *UserStore) update(ctx context.Context, query, userID string, doc domain.UserRecord) error {
	if doc == nil {
		doc = domain.UserRecord{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode user record %s: %w", userID, err)
	}

	tag, err := s.db.Exec(ctx, query, userID, data)
	if err != nil {
		return fmt.Errorf("update user record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}
	return nil
}

// CreateUser inserts an empty record for userID if none exists. Used when
// seeding a PostgreSQL backend.
func (s *UserStore) CreateUser(ctx context.Context, userID string, record domain.UserRecord) (err error) {
	query := `
		INSERT INTO user_records (id, document)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "CreateUser", query)
	defer func() { end(err) }()

	if record == nil {
		record = domain.UserRecord{}
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode user record %s: %w", userID, err)
	}
	if _, err := s.db.Exec(ctx, query, userID, data); err != nil {
		return fmt.Errorf("insert user record: %w", err)
	}
	return nil
}
