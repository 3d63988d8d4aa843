package runrepo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/formfiller/internal/domain/autofill"
	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/pkg/metrics"
)

// Schema creates the run log tables.
//
//go:embed schema.sql
var Schema string

const runColumns = `id, url, title, provider, model, status, submit, submitted, submit_status,
	questions, answered, error, prompt_tokens, completion_tokens, total_tokens,
	created_at, updated_at, finished_at`

// PostgresRepository implements autofill.RunRepository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the tables when they are missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create run log schema: %w", err)
	}
	return nil
}

// CreateRun inserts a new run row.
func (r *PostgresRepository) CreateRun(ctx context.Context, run autofill.Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fill_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, runArgs(run)...)
	return err
}

// UpdateRun overwrites the mutable run columns.
func (r *PostgresRepository) UpdateRun(ctx context.Context, run autofill.Run) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE fill_runs SET
			url = $2, title = $3, provider = $4, model = $5, status = $6,
			submit = $7, submitted = $8, submit_status = $9, questions = $10, answered = $11,
			error = $12, prompt_tokens = $13, completion_tokens = $14, total_tokens = $15,
			created_at = $16, updated_at = $17, finished_at = $18
		WHERE id = $1
	`, runArgs(run)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// AppendAnswer inserts one answer row; re-recording a position replaces it.
func (r *PostgresRepository) AppendAnswer(ctx context.Context, rec autofill.AnswerRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fill_answers (run_id, position, entry_id, question, type, raw, answer, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, position) DO UPDATE SET
			entry_id = EXCLUDED.entry_id, question = EXCLUDED.question, type = EXCLUDED.type,
			raw = EXCLUDED.raw, answer = EXCLUDED.answer, status = EXCLUDED.status,
			detail = EXCLUDED.detail, created_at = EXCLUDED.created_at
	`, rec.RunID, rec.Position, rec.EntryID, rec.Question, string(rec.Type), rec.Raw, rec.Answer,
		string(rec.Status), rec.Detail, rec.CreatedAt)
	return err
}

// GetRun fetches a run by id.
func (r *PostgresRepository) GetRun(ctx context.Context, id uuid.UUID) (autofill.Run, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM fill_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return autofill.Run{}, false, nil
		}
		return autofill.Run{}, false, err
	}
	return run, true, nil
}

// ListAnswers returns the answer log of a run in question order.
func (r *PostgresRepository) ListAnswers(ctx context.Context, runID uuid.UUID) ([]autofill.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT run_id, position, entry_id, question, type, raw, answer, status, detail, created_at
		FROM fill_answers
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []autofill.AnswerRecord
	for rows.Next() {
		var (
			rec           autofill.AnswerRecord
			qType, status string
		)
		if err := rows.Scan(&rec.RunID, &rec.Position, &rec.EntryID, &rec.Question, &qType, &rec.Raw,
			&rec.Answer, &status, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = form.QuestionType(qType)
		rec.Status = autofill.AnswerStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func runArgs(run autofill.Run) []any {
	return []any{
		run.ID, run.URL, run.Title, run.Provider, run.Model, string(run.Status),
		run.Submit, run.Submitted, run.SubmitStatus, run.Questions, run.Answered, run.Error,
		run.Usage.PromptTokens, run.Usage.CompletionTokens, run.Usage.TotalTokens,
		run.CreatedAt, run.UpdatedAt, run.FinishedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (autofill.Run, error) {
	var (
		run      autofill.Run
		status   string
		usage    metrics.TokenUsage
		finished *time.Time
	)
	if err := row.Scan(&run.ID, &run.URL, &run.Title, &run.Provider, &run.Model, &status,
		&run.Submit, &run.Submitted, &run.SubmitStatus, &run.Questions, &run.Answered, &run.Error,
		&usage.PromptTokens, &usage.CompletionTokens, &usage.TotalTokens,
		&run.CreatedAt, &run.UpdatedAt, &finished); err != nil {
		return autofill.Run{}, err
	}
	run.Status = autofill.RunStatus(status)
	run.Usage = usage
	run.FinishedAt = finished
	return run, nil
}

var _ autofill.RunRepository = (*PostgresRepository)(nil)
