package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
)

// AccountRepo implements accountpool.Repository against PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, tenant_id, credentials_ref, status, segment, linked_source_id,
	daily_counters, counters_day, cooldown_until, joined_at, disabled_sources,
	failure_reason, created_at, last_used_at`

func (r *AccountRepo) ListAccounts(ctx context.Context, tenantID string) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM engagement_accounts WHERE tenant_id = $1 ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var (
			a                          domain.Account
			status                     string
			counters, joined, disabled []byte
			cooldown                   sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.CredentialsRef, &status, &a.Segment, &a.LinkedSourceID,
			&counters, &a.CountersDay, &cooldown, &joined, &disabled,
			&a.FailureReason, &a.CreatedAt, &a.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Status = domain.AccountStatus(status)
		if cooldown.Valid {
			t := cooldown.Time
			a.CooldownUntil = &t
		}
		if err := unmarshalJSON(counters, &a.DailyCounters); err != nil {
			return nil, fmt.Errorf("account %s daily_counters: %w", a.ID, err)
		}
		if err := unmarshalJSON(joined, &a.JoinedAt); err != nil {
			return nil, fmt.Errorf("account %s joined_at: %w", a.ID, err)
		}
		if err := unmarshalJSON(disabled, &a.DisabledSources); err != nil {
			return nil, fmt.Errorf("account %s disabled_sources: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepo) SaveAccount(ctx context.Context, a *domain.Account) error {
	counters, err := json.Marshal(nonNil(a.DailyCounters))
	if err != nil {
		return err
	}
	joined, err := json.Marshal(nonNilTimes(a.JoinedAt))
	if err != nil {
		return err
	}
	disabled, err := json.Marshal(nonNilBools(a.DisabledSources))
	if err != nil {
		return err
	}
	var cooldown sql.NullTime
	if a.CooldownUntil != nil {
		cooldown = sql.NullTime{Time: *a.CooldownUntil, Valid: true}
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO engagement_accounts (`+accountColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			segment = EXCLUDED.segment,
			linked_source_id = EXCLUDED.linked_source_id,
			daily_counters = EXCLUDED.daily_counters,
			counters_day = EXCLUDED.counters_day,
			cooldown_until = EXCLUDED.cooldown_until,
			joined_at = EXCLUDED.joined_at,
			disabled_sources = EXCLUDED.disabled_sources,
			failure_reason = EXCLUDED.failure_reason,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = NOW()
	`, a.ID, a.TenantID, a.CredentialsRef, string(a.Status), a.Segment, a.LinkedSourceID,
		counters, a.CountersDay, cooldown, joined, disabled,
		a.FailureReason, created, a.LastUsedAt)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

func unmarshalJSON(b []byte, v interface{}) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nonNil(m map[domain.ActionType]int) map[domain.ActionType]int {
	if m == nil {
		return map[domain.ActionType]int{}
	}
	return m
}

func nonNilTimes(m map[string]time.Time) map[string]time.Time {
	if m == nil {
		return map[string]time.Time{}
	}
	return m
}

func nonNilBools(m map[string]bool) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return m
}
