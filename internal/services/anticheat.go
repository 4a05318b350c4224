package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"testquest-backend/internal/analytics"
	"testquest-backend/internal/logger"
	"testquest-backend/internal/models"
)

const (
	// AntiCheatChannel is the Redis channel violation events are published on.
	AntiCheatChannel = "anticheat_events"

	recentLogLimit     = 100
	flaggedAttemptsCap = 50
)

type ViolationStore interface {
	Record(ctx context.Context, log *models.AntiCheatLog) error
	ListRecent(ctx context.Context, limit int) ([]models.AntiCheatLog, error)
}

type FlaggedAttempts interface {
	ListFlagged(ctx context.Context, limit int) ([]models.TestAttempt, error)
}

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type AntiCheatService struct {
	logs    ViolationStore
	flagged FlaggedAttempts
	pub     Publisher
	log     *logger.Logger
}

func NewAntiCheatService(logs ViolationStore, flagged FlaggedAttempts, pub Publisher, log *logger.Logger) *AntiCheatService {
	if log == nil {
		log = logger.Nop()
	}
	return &AntiCheatService{logs: logs, flagged: flagged, pub: pub, log: log}
}

// ViolationContext describes where a report came from.
type ViolationContext struct {
	StudentID uuid.UUID
	AttemptID uuid.UUID
	IPAddress string
	UserAgent string
}

// Record stores one violation against the student's in-progress attempt and
// announces it to live staff feeds. A failed publish is logged only.
func (s *AntiCheatService) Record(ctx context.Context, vc ViolationContext, req models.ViolationRequest) (*models.AntiCheatLog, error) {
	if verr := validateStruct(req); verr != nil {
		return nil, verr
	}

	entry := &models.AntiCheatLog{
		AttemptID:        vc.AttemptID,
		StudentID:        vc.StudentID,
		ViolationType:    req.ViolationType,
		ViolationDetails: req.Details,
		IPAddress:        vc.IPAddress,
		UserAgent:        vc.UserAgent,
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Attempt not found or no longer in progress"}
		}
		return nil, unavailable(err)
	}

	s.log.Info("anti-cheat violation recorded",
		"attempt_id", entry.AttemptID,
		"student_id", entry.StudentID,
		"type", entry.ViolationType,
	)
	s.publish(ctx, entry)
	return entry, nil
}

func (s *AntiCheatService) publish(ctx context.Context, entry *models.AntiCheatLog) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(models.WSMessage{Type: models.WSAntiCheatViolation, Payload: entry})
	if err != nil {
		s.log.Warn("failed to encode anti-cheat event", "error", err)
		return
	}
	if err := s.pub.Publish(ctx, AntiCheatChannel, data).Err(); err != nil {
		s.log.Warn("failed to publish anti-cheat event", "attempt_id", entry.AttemptID, "error", err)
	}
}

type AntiCheatOverview struct {
	Logs            []models.AntiCheatLog      `json:"logs"`
	FlaggedAttempts []models.TestAttempt       `json:"flagged_attempts"`
	Summary         analytics.ViolationSummary `json:"summary"`
}

// Overview returns the latest logs narrowed by filter, recent flagged
// attempts, and a summary of all latest logs.
func (s *AntiCheatService) Overview(ctx context.Context, filter analytics.LogFilter) (*AntiCheatOverview, error) {
	var (
		logs    []models.AntiCheatLog
		flagged []models.TestAttempt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = s.logs.ListRecent(gctx, recentLogLimit)
		return err
	})
	g.Go(func() error {
		var err error
		flagged, err = s.flagged.ListFlagged(gctx, flaggedAttemptsCap)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("anti-cheat overview failed", "error", err)
		return nil, unavailable(fmt.Errorf("anti-cheat overview: %w", err))
	}

	if flagged == nil {
		flagged = []models.TestAttempt{}
	}
	return &AntiCheatOverview{
		Logs:            analytics.FilterLogs(logs, filter),
		FlaggedAttempts: flagged,
		Summary:         analytics.SummarizeViolations(logs),
	}, nil
}
