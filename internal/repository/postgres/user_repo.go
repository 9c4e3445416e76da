package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

// GetUserByUsername — аутентификация Console API. Источник правды — Postgres.
func (r *AgreementRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
	          FROM users WHERE username = $1`

	row := r.db.QueryRowContext(ctx, query, username)

	var u domain.User
	var scopes []byte
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &u.Scopes); err != nil {
			return nil, fmt.Errorf("unmarshal scopes: %w", err)
		}
	}
	return &u, nil
}
