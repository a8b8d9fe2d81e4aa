package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRecorder writes audit entries into the audit_logs table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder returns a Postgres-backed recorder.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// Record persists the entry.
func (r *PGRecorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("audit: entry requires action and entity")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor, action, entity, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		entry.Actor.String(), entry.Action, entry.Entity, metaJSON, entry.At)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("audit: record (%s): %w", pgErr.Code, err)
		}
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// TimelineFilters narrows a timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one row of the audit timeline.
type TimelineRow struct {
	At     time.Time      `json:"at"`
	Actor  string         `json:"actor"`
	Action string         `json:"action"`
	Entity string         `json:"entity"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Timeline pages through the trail, newest first.
func (r *PGRecorder) Timeline(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("audit: recorder not initialised")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := r.pool.Query(ctx,
		`SELECT occurred_at, actor, action, entity, meta
		   FROM audit_logs
		  WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		    AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		    AND ($3::text IS NULL OR actor = $3)
		    AND ($4::text IS NULL OR action = $4)
		  ORDER BY occurred_at DESC
		  OFFSET $5 LIMIT $6`,
		toPgTime(filters.From), toPgTime(filters.To),
		optionalText(filters.Actor), optionalText(filters.Action),
		(page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			at   pgtype.Timestamptz
			meta []byte
		)
		if err := rows.Scan(&at, &row.Actor, &row.Action, &row.Entity, &meta); err != nil {
			return nil, fmt.Errorf("audit: timeline scan: %w", err)
		}
		if at.Valid {
			row.At = at.Time
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
