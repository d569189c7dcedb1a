package postgres

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Worklog persists conversation work-log entries. The log is an audit trail
// for the chat surface; failures are logged and swallowed so a broken audit
// path never affects orchestration state.
type Worklog struct {
	pool *pgxpool.Pool
}

// NewWorklog creates a Worklog using the given connection pool.
func NewWorklog(pool *pgxpool.Pool) *Worklog {
	return &Worklog{pool: pool}
}

// Append records one work-log entry. Entries without a conversation id are
// dropped since the log is keyed by conversation.
func (w *Worklog) Append(ctx context.Context, conversationID, kind string, payload any) {
	if conversationID == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal worklog payload", "kind", kind, "error", err)
		return
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO worklog_entries (conversation_id, kind, payload) VALUES ($1, $2, $3)`,
		conversationID, kind, body)
	if err != nil {
		slog.Error("append worklog entry", "kind", kind, "error", err)
	}
}
