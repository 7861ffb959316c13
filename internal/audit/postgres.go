// File: internal/audit/postgres.go
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// PgxExecutor is the slice of pgxpool.Pool the audit sink needs. pgxmock
// satisfies it in tests.
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresLog persists audit entries in a PostgreSQL table. This is the go
// to for deployments that need queryable, tamper-evident trails.
type PostgresLog struct {
	logger *zap.Logger
	db     PgxExecutor
}

// NewPostgresLog wraps an existing pgx pool (or compatible executor).
func NewPostgresLog(logger *zap.Logger, db PgxExecutor) *PostgresLog {
	return &PostgresLog{
		logger: logger.Named("audit_postgres"),
		db:     db,
	}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id                TEXT PRIMARY KEY,
			run_id            TEXT,
			host              TEXT,
			action            TEXT NOT NULL,
			parameters        JSONB,
			policy_allowed    BOOLEAN NOT NULL,
			policy_reason     TEXT,
			requested_consent BOOLEAN NOT NULL,
			user_consented    BOOLEAN,
			outcome_success   BOOLEAN,
			outcome_message   TEXT,
			created_at        TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

// Append inserts one entry. Entries are never updated or deleted.
func (l *PostgresLog) Append(ctx context.Context, entry schemas.AuditEntry) error {
	stamp(&entry)

	params, err := json.Marshal(entry.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal audit parameters: %w", err)
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO audit_entries (
			id, run_id, host, action, parameters,
			policy_allowed, policy_reason, requested_consent,
			user_consented, outcome_success, outcome_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`,
		entry.ID, entry.RunID, entry.Host, string(entry.Action), params,
		entry.PolicyAllowed, entry.PolicyReason, entry.RequestedConsent,
		entry.UserConsented, entry.OutcomeSuccess, entry.OutcomeMessage, entry.Timestamp,
	)
	if err != nil {
		l.logger.Error("Failed to insert audit entry", zap.Error(err))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
