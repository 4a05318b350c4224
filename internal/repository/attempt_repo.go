package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"testquest-backend/internal/analytics"
	"testquest-backend/internal/models"
)

// AttemptRepo is the analytics.Source over Postgres.
type AttemptRepo struct {
	pool *pgxpool.Pool
}

func NewAttemptRepo(pool *pgxpool.Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

var _ analytics.Source = (*AttemptRepo)(nil)

const attemptColumns = `
	a.id, a.test_id, COALESCE(t.title, ''), a.student_id, COALESCE(u.full_name, ''),
	a.status, a.started_at, a.submitted_at, COALESCE(a.percentage, 0)::float8,
	COALESCE(a.is_passed, FALSE), a.is_flagged, a.flag_reason, COALESCE(a.time_taken_seconds, 0),
	a.tab_switches, a.fullscreen_exits, a.copy_attempts, a.right_click_attempts`

const attemptJoins = `
	FROM student_test_attempts a
	LEFT JOIN tests t ON t.id = a.test_id
	LEFT JOIN users u ON u.id = a.student_id`

func scanAttempt(row pgx.Row) (models.TestAttempt, error) {
	var a models.TestAttempt
	err := row.Scan(
		&a.ID, &a.TestID, &a.TestTitle, &a.StudentID, &a.StudentName,
		&a.Status, &a.StartedAt, &a.SubmittedAt, &a.Percentage,
		&a.IsPassed, &a.IsFlagged, &a.FlagReason, &a.TimeTakenSeconds,
		&a.TabSwitches, &a.FullscreenExits, &a.CopyAttempts, &a.RightClickAttempts,
	)
	return a, err
}

// ListAttempts returns attempts oldest first.
func (r *AttemptRepo) ListAttempts(ctx context.Context, filter analytics.AttemptFilter) ([]models.TestAttempt, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}

	query := `SELECT ` + attemptColumns + attemptJoins + `
		WHERE ($1::uuid IS NULL OR a.student_id = $1)
		  AND (cardinality($2::text[]) = 0 OR a.status = ANY($2))
		ORDER BY COALESCE(a.submitted_at, a.started_at) ASC`

	rows, err := r.pool.Query(ctx, query, filter.StudentID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]models.TestAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListAnswers joins each answer to its question, topic and subject.
func (r *AttemptRepo) ListAnswers(ctx context.Context, attemptIDs []uuid.UUID) ([]models.Answer, error) {
	answers := make([]models.Answer, 0)
	if len(attemptIDs) == 0 {
		return answers, nil
	}

	query := `
		SELECT sa.id, sa.attempt_id, sa.question_id, COALESCE(sa.is_correct, FALSE),
			q.id, q.difficulty, q.topic_id,
			tp.name, tp.subject_id, s.name
		FROM student_answers sa
		LEFT JOIN questions q ON q.id = sa.question_id
		LEFT JOIN topics tp ON tp.id = q.topic_id
		LEFT JOIN subjects s ON s.id = tp.subject_id
		WHERE sa.attempt_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, attemptIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ans         models.Answer
			questionID  *uuid.UUID
			difficulty  *string
			topicID     *uuid.UUID
			topicName   *string
			subjectID   *uuid.UUID
			subjectName *string
		)
		if err := rows.Scan(
			&ans.ID, &ans.AttemptID, &ans.QuestionID, &ans.IsCorrect,
			&questionID, &difficulty, &topicID,
			&topicName, &subjectID, &subjectName,
		); err != nil {
			return nil, err
		}

		if questionID != nil {
			q := &models.Question{ID: *questionID, TopicID: topicID}
			if difficulty != nil {
				q.Difficulty = models.Difficulty(*difficulty)
			}
			if topicID != nil && topicName != nil {
				q.Topic = &models.Topic{ID: *topicID, Name: *topicName}
				if subjectID != nil {
					q.Topic.SubjectID = *subjectID
				}
				if subjectName != nil {
					q.Topic.SubjectName = *subjectName
				}
			}
			ans.Question = q
		}
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}

func (r *AttemptRepo) CountStudents(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE role = $1", models.RoleStudent).Scan(&n)
	return n, err
}

func (r *AttemptRepo) CountTests(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tests").Scan(&n)
	return n, err
}

// ListFlagged returns the most recent flagged attempts.
func (r *AttemptRepo) ListFlagged(ctx context.Context, limit int) ([]models.TestAttempt, error) {
	query := `SELECT ` + attemptColumns + attemptJoins + `
		WHERE a.is_flagged = TRUE
		ORDER BY COALESCE(a.submitted_at, a.started_at) DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]models.TestAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
