package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/engagement-engine/internal/domain"
)

// SessionRepo implements worker.SessionStore against PostgreSQL.
type SessionRepo struct{ db *sql.DB }

// NewSessionRepo creates a Postgres-backed session checkpoint store.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) LoadSession(ctx context.Context, tenantID string) (*domain.SessionState, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state FROM engagement_sessions WHERE tenant_id = $1`, tenantID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var st domain.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &st, nil
}

func (r *SessionRepo) SaveSession(ctx context.Context, st *domain.SessionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO engagement_sessions (tenant_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
	`, st.TenantID, raw)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
