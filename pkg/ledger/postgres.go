package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Postgres is a Store over the tables created by the database package's
// migrations.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Store over db. The schema must already be migrated.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var (
	_ Store  = (*Postgres)(nil)
	_ Pruner = (*Postgres)(nil)
)

func (p *Postgres) RecordCommand(ctx context.Context, cmd Command) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO commands (message_id, type, route, session_id, payload, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING`,
		cmd.MessageID, cmd.Type, cmd.Route, nullString(cmd.SessionID), nullJSON(cmd.Payload), cmd.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert command %s: %w", cmd.MessageID, err)
	}
	return nil
}

// RecordOutcome updates the command row. Unknown message ids are ignored.
func (p *Postgres) RecordOutcome(ctx context.Context, out Outcome) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE commands
		SET outcome_kind = $2, success = $3, error = $4, result = $5, response_text = $6, received_at = $7
		WHERE message_id = $1`,
		out.MessageID, out.Kind, out.Success, nullString(out.Error), nullJSON(out.Result),
		nullString(out.Text), out.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", out.MessageID, err)
	}
	return nil
}

func (p *Postgres) RecordTransition(ctx context.Context, tr Transition) error {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO transitions (id, from_state, to_state, trigger, session_id, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tr.ID, tr.From, tr.To, tr.Trigger, nullString(tr.SessionID), tr.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

func (p *Postgres) GetCommand(ctx context.Context, messageID string) (*CommandRecord, error) {
	var (
		rec        CommandRecord
		sessionID  sql.NullString
		payload    []byte
		kind       sql.NullString
		success    sql.NullBool
		errText    sql.NullString
		result     []byte
		text       sql.NullString
		receivedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT message_id, type, route, session_id, payload, sent_at,
			outcome_kind, success, error, result, response_text, received_at
		FROM commands WHERE message_id = $1`, messageID).
		Scan(&rec.MessageID, &rec.Type, &rec.Route, &sessionID, &payload, &rec.SentAt,
			&kind, &success, &errText, &result, &text, &receivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query command %s: %w", messageID, err)
	}
	rec.SessionID = sessionID.String
	rec.Payload = payload
	if kind.Valid {
		rec.Outcome = &Outcome{
			MessageID:  rec.MessageID,
			Kind:       kind.String,
			Success:    success.Bool,
			Error:      errText.String,
			Result:     result,
			Text:       text.String,
			ReceivedAt: receivedAt.Time,
		}
	}
	return &rec, nil
}

func (p *Postgres) ListTransitions(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, from_state, to_state, trigger, session_id, at
		FROM transitions ORDER BY at DESC, seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Transition
	for rows.Next() {
		var (
			tr        Transition
			sessionID sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.From, &tr.To, &tr.Trigger, &sessionID, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.SessionID = sessionID.String
		result = append(result, tr)
	}
	return result, rows.Err()
}

func (p *Postgres) PruneCommands(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM commands WHERE sent_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune commands: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) PruneTransitions(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM transitions WHERE at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune transitions: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
