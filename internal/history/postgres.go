package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/perchlabs/perch/internal/pipeline"
)

// Schema is the SQL DDL for the stage_history table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS stage_history (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    input_kind  TEXT NOT NULL,
    input_text  TEXT NOT NULL DEFAULT '',
    result_kind TEXT NOT NULL,
    result_text TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_stage_history_session ON stage_history(session_id);
CREATE INDEX IF NOT EXISTS idx_stage_history_created ON stage_history(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is one persisted stage outcome as read back from the database.
type Record struct {
	ID         int64
	SessionID  string
	InputKind  string
	InputText  string
	ResultKind string
	ResultText string
	Source     string
	CreatedAt  time.Time
}

// PostgresStore persists stage outcomes. Appends are fire-and-forget: the
// pipeline must never stall on the database, so insert failures are logged
// and dropped.
type PostgresStore struct {
	db      DB
	timeout time.Duration
}

var _ pipeline.DomainHistory = (*PostgresStore)(nil)

// NewPostgresStore creates a store around the given connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: 5 * time.Second}
}

// Migrate executes the [Schema] DDL, creating the stage_history table and
// indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// AddToHistory implements [pipeline.DomainHistory].
func (s *PostgresStore) AddToHistory(sessionID string, input, result pipeline.StageResult) {
	inKind, inText := Describe(input)
	outKind, outText := Describe(result)
	source := ""
	if result != nil {
		source = string(result.ResultSource())
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		const query = `
			INSERT INTO stage_history (session_id, input_kind, input_text, result_kind, result_text, source)
			VALUES ($1,$2,$3,$4,$5,$6)`
		if _, err := s.db.Exec(ctx, query, sessionID, inKind, inText, outKind, outText, source); err != nil {
			slog.Error("history insert failed", "session_id", sessionID, "error", err)
		}
	}()
}

// RecentForSession returns up to limit records for one session, newest first.
func (s *PostgresStore) RecentForSession(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	const query = `
		SELECT id, session_id, input_kind, input_text, result_kind, result_text, source, created_at
		FROM stage_history
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.SessionID, &r.InputKind, &r.InputText, &r.ResultKind, &r.ResultText, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate records: %w", err)
	}
	return out, nil
}

// Describe flattens a stage result into a type tag and its salient text.
func Describe(r pipeline.StageResult) (kind, text string) {
	switch v := r.(type) {
	case nil:
		return "none", ""
	case pipeline.WakeResult:
		return "wake", v.WakeWord
	case pipeline.Transcript:
		return "transcript", v.Text
	case pipeline.TranscriptError:
		return "transcript_error", v.Reason.String()
	case pipeline.TranscriptDisabled:
		return "transcript_disabled", ""
	case pipeline.TranscriptTimeout:
		return "transcript_timeout", ""
	case pipeline.Intent:
		return "intent", v.Name
	case pipeline.NotRecognized:
		return "not_recognized", v.Reason.String()
	case pipeline.IntentDisabled:
		return "intent_disabled", ""
	case pipeline.Handle:
		return "handle", v.Text
	case pipeline.HandleError:
		return "handle_error", v.Reason.String()
	case pipeline.NotHandled:
		return "not_handled", ""
	case pipeline.HandleDisabled:
		return "handle_disabled", ""
	case pipeline.Audio:
		return "audio", fmt.Sprintf("%d bytes", len(v.Wav))
	case pipeline.NotSynthesized:
		return "not_synthesized", v.Reason.String()
	case pipeline.TtsDisabled:
		return "tts_disabled", ""
	case pipeline.Played:
		return "played", ""
	case pipeline.NotPlayed:
		return "not_played", v.Reason.String()
	case pipeline.PlayDisabled:
		return "play_disabled", ""
	default:
		return fmt.Sprintf("%T", r), ""
	}
}
