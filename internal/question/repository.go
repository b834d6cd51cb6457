package question

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/sqlutil"
)

// Repository is a read-only view of the central question bank. Authoring is
// owned by the question-management subsystem.
type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var q models.Question
	var imageURL sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, text, image_url, correct_answer, points
		FROM questions WHERE id = $1`, id).
		Scan(&q.ID, &q.Text, &imageURL, &q.CorrectAnswer, &q.Points)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	q.ImageURL = sqlutil.FromSqlStringPtr(imageURL)
	return &q, nil
}

// ListByOrder returns the questions assigned to a relay-quiz session in the
// order teams must answer them.
func (r *Repository) ListByOrder(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.id, q.text, q.image_url, q.correct_answer, q.points
		FROM relay_quiz_questions rq
		JOIN questions q ON q.id = rq.question_id
		WHERE rq.session_id = $1
		ORDER BY rq.question_order`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var imageURL sql.NullString
		if err := rows.Scan(&q.ID, &q.Text, &imageURL, &q.CorrectAnswer, &q.Points); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.ImageURL = sqlutil.FromSqlStringPtr(imageURL)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
