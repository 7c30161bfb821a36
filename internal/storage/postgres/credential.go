package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"feed_relay/internal/domain"
)

var credentialColumns = []string{"id", "token", "name", "status", "created_at", "updated_at"}

type CredentialStore struct {
	db *sqlx.DB
}

func NewCredentialStore(db *sqlx.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Save inserts a credential or replaces token, name and status of an
// existing one.
func (s *CredentialStore) Save(ctx context.Context, cred domain.Credential) error {
	b := psql.Insert("credentials").
		Columns("id", "token", "name", "status").
		Values(cred.ID, cred.Token, cred.Name, cred.Status).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			token = EXCLUDED.token,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = NOW()`)

	if _, err := exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("save credential %s: %w", cred.ID, err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, id string) (*domain.Credential, error) {
	query, args, err := psql.Select(credentialColumns...).From("credentials").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cred domain.Credential
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &cred, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *CredentialStore) List(ctx context.Context) ([]domain.Credential, error) {
	return s.list(ctx, psql.Select(credentialColumns...).From("credentials").OrderBy("created_at", "id"))
}

// ListByStatus returns credentials in status, leaving out excludeIDs.
func (s *CredentialStore) ListByStatus(ctx context.Context, status domain.CredentialStatus, excludeIDs []string) ([]domain.Credential, error) {
	b := psql.Select(credentialColumns...).
		From("credentials").
		Where(sq.Eq{"status": status}).
		OrderBy("created_at", "id")
	if len(excludeIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludeIDs})
	}
	return s.list(ctx, b)
}

func (s *CredentialStore) list(ctx context.Context, b sq.SelectBuilder) ([]domain.Credential, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var creds []domain.Credential
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &creds, query, args...); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

func (s *CredentialStore) Update(ctx context.Context, id string, upd domain.CredentialUpdate) error {
	if upd.Empty() {
		return nil
	}

	b := psql.Update("credentials").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
	if upd.Token != nil {
		b = b.Set("token", *upd.Token)
	}
	if upd.Name != nil {
		b = b.Set("name", *upd.Name)
	}
	if upd.Status != nil {
		b = b.Set("status", *upd.Status)
	}

	n, err := exec(ctx, s.db, b)
	if err != nil {
		return fmt.Errorf("update credential %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, id string) error {
	n, err := exec(ctx, s.db, psql.Delete("credentials").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}
