package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"testquest-backend/internal/models"
)

type AntiCheatRepo struct {
	pool *pgxpool.Pool
}

func NewAntiCheatRepo(pool *pgxpool.Pool) *AntiCheatRepo {
	return &AntiCheatRepo{pool: pool}
}

// Record stores a violation for an in-progress attempt owned by
// log.StudentID, bumps the matching counter and flags the attempt. The
// student and test fields of log are filled from the joined rows. Returns
// pgx.ErrNoRows when no such attempt exists.
func (r *AntiCheatRepo) Record(ctx context.Context, log *models.AntiCheatLog) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		SELECT a.test_id, COALESCE(t.title, ''), COALESCE(u.full_name, ''), COALESCE(u.email, '')
		FROM student_test_attempts a
		LEFT JOIN tests t ON t.id = a.test_id
		LEFT JOIN users u ON u.id = a.student_id
		WHERE a.id = $1 AND a.student_id = $2 AND a.status = $3
		FOR UPDATE OF a`,
		log.AttemptID, log.StudentID, models.AttemptInProgress,
	).Scan(&log.TestID, &log.TestTitle, &log.StudentName, &log.StudentEmail)
	if err != nil {
		return err
	}

	log.ID = uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO anti_cheat_logs (id, attempt_id, student_id, violation_type, violation_details, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		log.ID, log.AttemptID, log.StudentID, log.ViolationType, log.ViolationDetails, log.IPAddress, log.UserAgent,
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert anti-cheat log: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE student_test_attempts SET
			tab_switches = tab_switches + CASE WHEN $2 = 'tab_switch' THEN 1 ELSE 0 END,
			fullscreen_exits = fullscreen_exits + CASE WHEN $2 = 'fullscreen_exit' THEN 1 ELSE 0 END,
			copy_attempts = copy_attempts + CASE WHEN $2 = 'copy_paste' THEN 1 ELSE 0 END,
			right_click_attempts = right_click_attempts + CASE WHEN $2 = 'right_click' THEN 1 ELSE 0 END,
			is_flagged = TRUE,
			flag_reason = COALESCE(flag_reason, $3)
		WHERE id = $1`,
		log.AttemptID, string(log.ViolationType), "anti-cheat: "+string(log.ViolationType),
	)
	if err != nil {
		return fmt.Errorf("failed to flag attempt: %w", err)
	}

	return tx.Commit(ctx)
}

// ListRecent returns the newest logs first.
func (r *AntiCheatRepo) ListRecent(ctx context.Context, limit int) ([]models.AntiCheatLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.attempt_id, l.student_id, COALESCE(u.full_name, ''), COALESCE(u.email, ''),
			COALESCE(a.test_id, '00000000-0000-0000-0000-000000000000'::uuid), COALESCE(t.title, ''),
			l.violation_type, l.violation_details, COALESCE(l.ip_address, ''), COALESCE(l.user_agent, ''), l.created_at
		FROM anti_cheat_logs l
		LEFT JOIN users u ON u.id = l.student_id
		LEFT JOIN student_test_attempts a ON a.id = l.attempt_id
		LEFT JOIN tests t ON t.id = a.test_id
		ORDER BY l.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.AntiCheatLog, 0)
	for rows.Next() {
		var l models.AntiCheatLog
		if err := rows.Scan(
			&l.ID, &l.AttemptID, &l.StudentID, &l.StudentName, &l.StudentEmail,
			&l.TestID, &l.TestTitle,
			&l.ViolationType, &l.ViolationDetails, &l.IPAddress, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
