// Package worklog defines the append-only workflow audit log port.
package worklog

import "context"

// Log records one audit entry per orchestration event. Writes are
// fire-and-forget relative to orchestration correctness; implementations log
// and swallow their own failures.
type Log interface {
	Append(ctx context.Context, conversationID, kind string, payload any)
}
