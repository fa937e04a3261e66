package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/scai/internal/progress"
	"github.com/p-n-ai/scai/internal/scai"
)

const dbTimeout = 5 * time.Second

const sessionColumns = `id::text, user_name, subject, chapter, lesson_key, level, state,
	question_id, question_text, last_answer, progress, started_at, updated_at, ended_at`

// PostgresStore is a PostgreSQL-backed SessionStore implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed session store. The schema is
// expected to be migrated already.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateSession(sess Session) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if sess.UserName == "" {
		return "", fmt.Errorf("user_name is required")
	}
	if sess.State == "" {
		sess.State = StateAwaitingLevel
	}
	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	prog, err := json.Marshal(sess.Progress)
	if err != nil {
		return "", fmt.Errorf("marshal progress: %w", err)
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_name, subject, chapter, lesson_key, level, state,
		   question_id, question_text, last_answer, progress, started_at, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $12)`,
		id.String(),
		sess.UserName,
		sess.Subject,
		sess.Chapter,
		sess.LessonKey,
		sess.Level,
		string(sess.State),
		nullIfEmpty(string(sess.QuestionID)),
		nullIfEmpty(sess.QuestionText),
		nullIfEmpty(sess.LastAnswer),
		string(prog),
		startedAt,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id.String(), nil
}

func (s *PostgresStore) GetSession(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1::uuid`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) GetActiveSession(userName string) (*Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_name = $1
		   AND ended_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userName,
	))
	if err != nil {
		return nil, false
	}
	return sess, true
}

func (s *PostgresStore) SaveSession(sess Session) error {
	if _, err := uuid.Parse(sess.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	prog, err := json.Marshal(sess.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET level = $2,
		     state = $3,
		     question_id = $4,
		     question_text = $5,
		     last_answer = $6,
		     progress = $7::jsonb,
		     updated_at = NOW()
		 WHERE id = $1::uuid AND ended_at IS NULL`,
		sess.ID,
		sess.Level,
		string(sess.State),
		nullIfEmpty(string(sess.QuestionID)),
		nullIfEmpty(sess.QuestionText),
		nullIfEmpty(sess.LastAnswer),
		string(prog),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var ended bool
		err := s.pool.QueryRow(ctx, `SELECT ended_at IS NOT NULL FROM sessions WHERE id = $1::uuid`, sess.ID).Scan(&ended)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
		case err != nil:
			return fmt.Errorf("save session: %w", err)
		case ended:
			return fmt.Errorf("%w: %s", ErrSessionEnded, sess.ID)
		}
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	return nil
}

func (s *PostgresStore) EndSession(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET ended_at = COALESCE(ended_at, NOW()),
		     state = $2,
		     updated_at = NOW()
		 WHERE id = $1::uuid`,
		id,
		string(StateEnded),
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func (s *PostgresStore) EndIdleSessions(before time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`UPDATE sessions
		 SET ended_at = NOW(),
		     state = $2,
		     updated_at = NOW()
		 WHERE ended_at IS NULL
		   AND updated_at < $1
		 RETURNING id::text`,
		before,
		string(StateEnded),
	)
	if err != nil {
		return nil, fmt.Errorf("end idle sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect idle sessions: %w", err)
	}
	return ids, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	sess := &Session{}
	var (
		state        string
		questionID   *string
		questionText *string
		lastAnswer   *string
		prog         []byte
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserName,
		&sess.Subject,
		&sess.Chapter,
		&sess.LessonKey,
		&sess.Level,
		&state,
		&questionID,
		&questionText,
		&lastAnswer,
		&prog,
		&sess.StartedAt,
		&sess.UpdatedAt,
		&sess.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.State = State(state)
	if questionID != nil {
		sess.QuestionID = scai.QuestionID(*questionID)
	}
	if questionText != nil {
		sess.QuestionText = *questionText
	}
	if lastAnswer != nil {
		sess.LastAnswer = *lastAnswer
	}
	sess.Progress = parseProgress(prog)
	return sess, nil
}

func parseProgress(raw []byte) progress.State {
	var st progress.State
	if len(raw) == 0 {
		return st
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return progress.State{}
	}
	return st
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
