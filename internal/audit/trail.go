// Package audit records connection lifecycle events for querying after
// the fact. The trail is append-only history: nothing in it feeds back
// into reconnect or reconciliation decisions.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a single connection lifecycle entry.
type Event struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which events List returns.
type Filter struct {
	Tenant string // optional: filter by tenant id
	Event  string // optional: filter by event kind (connected, disconnected, ...)
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated trail results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Logger receives write failures; recording is best-effort and must
// never block or fail the caller.
type Logger interface {
	Error(msg string, args ...any)
}

// Trail writes and reads connection events in SQLite.
type Trail struct {
	db     *sql.DB
	logger Logger
}

func NewTrail(db *sql.DB, logger Logger) *Trail {
	return &Trail{db: db, logger: logger}
}

// Record appends one event. Failures are logged, not returned;
// connection handling never stalls on the trail.
func (t *Trail) Record(ctx context.Context, tenant, event, detail string) {
	id := "evt-" + uuid.NewString()[:8]
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO connection_events (id, tenant, event, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, tenant, event, nullableString(detail),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil && t.logger != nil {
		t.logger.Error("audit write failed",
			"tenant", tenant, "event", event, "error", err)
	}
}

// nullableString maps empty strings to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, most recent first.
func (t *Trail) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Tenant != "" {
		conditions = append(conditions, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if filter.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filter.Event)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE is assembled from fixed parameterised conditions only.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM connection_events %s", where)
	var total int
	if err := t.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, tenant, event, detail, created_at FROM connection_events %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var detail sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Tenant, &e.Event, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = ts

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
