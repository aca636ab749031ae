package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/yuns-backend/apiserver/types"
)

// QuestionRepository handles persistence for support questions.
type QuestionRepository struct {
	db *sql.DB
}

func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func (r *QuestionRepository) List(ctx context.Context, offset, limit int) ([]types.Question, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	const countQuery = `SELECT COUNT(1) FROM questions`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, title, content, image_url, state, answer, student_number, created_at
		FROM questions
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	questions := make([]types.Question, 0, limit)
	for rows.Next() {
		question, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		questions = append(questions, question)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return questions, total, nil
}

func (r *QuestionRepository) Get(ctx context.Context, id int) (types.Question, error) {
	const query = `
		SELECT id, title, content, image_url, state, answer, student_number, created_at
		FROM questions
		WHERE id = $1`
	question, err := scanQuestion(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Question{}, ErrNotFound
		}
		return types.Question{}, err
	}
	return question, nil
}

// Create inserts the question and returns it with the assigned id.
// The creation timestamp is set here, never supplied by callers.
func (r *QuestionRepository) Create(ctx context.Context, question types.Question) (types.Question, error) {
	question.CreatedAt = time.Now()

	const query = `
		INSERT INTO questions (title, content, image_url, state, answer, student_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		question.Title,
		question.Content,
		nullString(question.ImageURL),
		question.State,
		nullString(question.Answer),
		question.StudentNumber,
		question.CreatedAt,
	).Scan(&question.ID); err != nil {
		return types.Question{}, err
	}
	return question, nil
}

// Update rewrites the mutable columns of the question row. The owner and
// creation timestamp columns are immutable and not part of the statement.
func (r *QuestionRepository) Update(ctx context.Context, question types.Question) (types.Question, error) {
	const query = `
		UPDATE questions
		SET title = $1,
			content = $2,
			image_url = $3,
			state = $4,
			answer = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		question.Title,
		question.Content,
		nullString(question.ImageURL),
		question.State,
		nullString(question.Answer),
		question.ID,
	)
	if err != nil {
		return types.Question{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Question{}, err
	}
	if affected == 0 {
		return types.Question{}, ErrNotFound
	}
	return question, nil
}

func (r *QuestionRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM questions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanQuestion(scan func(dest ...any) error) (types.Question, error) {
	var question types.Question
	var imageURL, answer sql.NullString
	if err := scan(
		&question.ID,
		&question.Title,
		&question.Content,
		&imageURL,
		&question.State,
		&answer,
		&question.StudentNumber,
		&question.CreatedAt,
	); err != nil {
		return types.Question{}, err
	}
	if imageURL.Valid {
		question.ImageURL = &imageURL.String
	}
	if answer.Valid {
		question.Answer = &answer.String
	}
	return question, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
