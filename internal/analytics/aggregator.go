package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"testquest-backend/internal/logger"
	"testquest-backend/internal/models"
)

// ErrDataUnavailable marks a report built without usable source data. It is
// logged, never returned; reports carry DataUnavailable instead.
var ErrDataUnavailable = errors.New("analytics: data unavailable")

const (
	defaultHistoryLimit     = 10
	defaultWeakTopicLimit   = 5
	defaultLeaderboardLimit = 5
	defaultTestLimit        = 10
)

// AttemptFilter selects attempts from a Source. A nil StudentID means every
// student.
type AttemptFilter struct {
	StudentID *uuid.UUID
	Statuses  []models.AttemptStatus
}

// Source is the read side of the attempt store.
type Source interface {
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]models.TestAttempt, error)
	// ListAnswers returns answers of the given attempts with question and
	// topic joined where available.
	ListAnswers(ctx context.Context, attemptIDs []uuid.UUID) ([]models.Answer, error)
	CountStudents(ctx context.Context) (int, error)
	CountTests(ctx context.Context) (int, error)
}

type Options struct {
	LeaderboardLimit     int
	TestPerformanceLimit int
	HistoryLimit         int
	WeakTopicLimit       int
	Location             *time.Location
	Now                  func() time.Time
}

type Aggregator struct {
	source Source
	opts   Options
	log    *logger.Logger
}

func NewAggregator(source Source, opts Options, log *logger.Logger) *Aggregator {
	if opts.LeaderboardLimit <= 0 {
		opts.LeaderboardLimit = defaultLeaderboardLimit
	}
	if opts.TestPerformanceLimit <= 0 {
		opts.TestPerformanceLimit = defaultTestLimit
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.WeakTopicLimit <= 0 {
		opts.WeakTopicLimit = defaultWeakTopicLimit
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Aggregator{source: source, opts: opts, log: log}
}

type StudentReport struct {
	StudentID       uuid.UUID               `json:"student_id"`
	Overview        OverviewStats           `json:"overview"`
	Topics          []TopicPerformance      `json:"topics"`
	WeakTopics      []string                `json:"weak_topics"`
	Difficulty      []DifficultyPerformance `json:"difficulty"`
	History         []HistoryPoint          `json:"history"`
	Daily           []DailyActivity         `json:"daily"`
	DataUnavailable bool                    `json:"data_unavailable"`
}

type PlatformReport struct {
	Overview        OverviewStats     `json:"overview"`
	Tests           []TestPerformance `json:"tests"`
	Daily           []DailyActivity   `json:"daily"`
	TopStudents     []RankedStudent   `json:"top_students"`
	DataUnavailable bool              `json:"data_unavailable"`
}

type Leaderboard struct {
	Entries         []RankedStudent `json:"entries"`
	Viewer          *RankedStudent  `json:"viewer,omitempty"`
	DataUnavailable bool            `json:"data_unavailable"`
}

// StudentReport summarizes one student's scored attempts.
func (a *Aggregator) StudentReport(ctx context.Context, studentID uuid.UUID) StudentReport {
	now := a.opts.Now()
	attempts, err := a.source.ListAttempts(ctx, AttemptFilter{StudentID: &studentID, Statuses: models.ScoredStatuses})
	if err == nil {
		err = validateAttempts(attempts)
	}
	if err != nil {
		a.unavailable("student", err, "student_id", studentID)
		return a.emptyStudentReport(studentID, now)
	}
	attempts = Eligible(attempts, ForStudent(studentID))

	answers, err := a.source.ListAnswers(ctx, attemptIDs(attempts))
	if err == nil {
		err = validateAnswers(answers)
	}
	if err != nil {
		a.unavailable("student", err, "student_id", studentID)
		return a.emptyStudentReport(studentID, now)
	}

	topics := Topics(answers)
	return StudentReport{
		StudentID:  studentID,
		Overview:   Overview(attempts),
		Topics:     topics,
		WeakTopics: WeakTopics(topics, a.opts.WeakTopicLimit),
		Difficulty: Difficulties(answers),
		History:    History(attempts, a.opts.HistoryLimit),
		Daily:      Daily(attempts, now, a.opts.Location),
	}
}

// PlatformReport summarizes every student's scored attempts.
func (a *Aggregator) PlatformReport(ctx context.Context) PlatformReport {
	now := a.opts.Now()

	var (
		attempts []models.TestAttempt
		students int
		tests    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		attempts, err = a.source.ListAttempts(gctx, AttemptFilter{Statuses: models.ScoredStatuses})
		if err != nil {
			return err
		}
		return validateAttempts(attempts)
	})
	g.Go(func() error {
		var err error
		students, err = a.source.CountStudents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tests, err = a.source.CountTests(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		a.unavailable("platform", err)
		return a.emptyPlatformReport(now)
	}

	attempts = Eligible(attempts, AllStudents())
	overview := Overview(attempts)
	overview.TotalStudents = students
	overview.TotalTests = tests

	byTest := ByTest(attempts)
	if len(byTest) > a.opts.TestPerformanceLimit {
		byTest = byTest[:a.opts.TestPerformanceLimit]
	}

	return PlatformReport{
		Overview:    overview,
		Tests:       byTest,
		Daily:       Daily(attempts, now, a.opts.Location),
		TopStudents: Top(RankStudents(attempts), a.opts.LeaderboardLimit),
	}
}

// Leaderboard ranks every student and returns the first limit entries plus
// the viewer's own entry when they have one. limit <= 0 uses the configured
// default.
func (a *Aggregator) Leaderboard(ctx context.Context, limit int, viewer uuid.UUID) Leaderboard {
	if limit <= 0 {
		limit = a.opts.LeaderboardLimit
	}

	attempts, err := a.source.ListAttempts(ctx, AttemptFilter{Statuses: models.ScoredStatuses})
	if err == nil {
		err = validateAttempts(attempts)
	}
	if err != nil {
		a.unavailable("leaderboard", err)
		return Leaderboard{Entries: []RankedStudent{}, DataUnavailable: true}
	}

	ranked := RankStudents(Eligible(attempts, AllStudents()))
	board := Leaderboard{Entries: Top(ranked, limit)}
	if viewer != uuid.Nil {
		if entry, ok := RankOf(ranked, viewer); ok {
			board.Viewer = &entry
		}
	}
	return board
}

func (a *Aggregator) unavailable(report string, err error, keysAndValues ...interface{}) {
	kv := append([]interface{}{"report", report, "error", fmt.Errorf("%w: %w", ErrDataUnavailable, err)}, keysAndValues...)
	a.log.Warn("analytics source failed, returning empty report", kv...)
}

func (a *Aggregator) emptyStudentReport(studentID uuid.UUID, now time.Time) StudentReport {
	return StudentReport{
		StudentID:       studentID,
		Topics:          []TopicPerformance{},
		WeakTopics:      []string{},
		Difficulty:      Difficulties(nil),
		History:         []HistoryPoint{},
		Daily:           Daily(nil, now, a.opts.Location),
		DataUnavailable: true,
	}
}

func (a *Aggregator) emptyPlatformReport(now time.Time) PlatformReport {
	return PlatformReport{
		Tests:           []TestPerformance{},
		Daily:           Daily(nil, now, a.opts.Location),
		TopStudents:     []RankedStudent{},
		DataUnavailable: true,
	}
}

func attemptIDs(attempts []models.TestAttempt) []uuid.UUID {
	ids := make([]uuid.UUID, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	return ids
}

func validateAttempts(attempts []models.TestAttempt) error {
	for _, a := range attempts {
		if a.ID == uuid.Nil || a.StudentID == uuid.Nil || a.TestID == uuid.Nil {
			return fmt.Errorf("attempt %s: missing identifier", a.ID)
		}
		if math.IsNaN(a.Percentage) || a.Percentage < 0 || a.Percentage > 100 {
			return fmt.Errorf("attempt %s: percentage %v out of range", a.ID, a.Percentage)
		}
	}
	return nil
}

func validateAnswers(answers []models.Answer) error {
	for _, ans := range answers {
		if ans.AttemptID == uuid.Nil || ans.QuestionID == uuid.Nil {
			return fmt.Errorf("answer %s: missing identifier", ans.ID)
		}
		if ans.Question != nil && ans.Question.Topic != nil && ans.Question.Topic.ID == uuid.Nil {
			return fmt.Errorf("answer %s: topic without identifier", ans.ID)
		}
	}
	return nil
}
