package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"testquest-backend/internal/analytics"
	"testquest-backend/internal/models"
)

type stubViolationStore struct {
	recordErr error
	listErr   error
	recorded  []*models.AntiCheatLog
	recent    []models.AntiCheatLog
}

func (s *stubViolationStore) Record(ctx context.Context, log *models.AntiCheatLog) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	log.ID = uuid.New()
	log.StudentName = "Ada"
	log.CreatedAt = time.Now()
	s.recorded = append(s.recorded, log)
	return nil
}

func (s *stubViolationStore) ListRecent(ctx context.Context, limit int) ([]models.AntiCheatLog, error) {
	return s.recent, s.listErr
}

type stubFlagged struct {
	attempts []models.TestAttempt
}

func (s stubFlagged) ListFlagged(ctx context.Context, limit int) ([]models.TestAttempt, error) {
	return s.attempts, nil
}

type fakePublisher struct {
	err      error
	channel  string
	messages [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	if b, ok := message.([]byte); ok {
		p.messages = append(p.messages, b)
	}
	return redis.NewIntResult(1, p.err)
}

func violationContext() ViolationContext {
	return ViolationContext{StudentID: uuid.New(), AttemptID: uuid.New(), IPAddress: "10.0.0.1", UserAgent: "test"}
}

func TestAntiCheatService_Record(t *testing.T) {
	store := &stubViolationStore{}
	pub := &fakePublisher{}
	svc := NewAntiCheatService(store, stubFlagged{}, pub, nil)

	vc := violationContext()
	entry, err := svc.Record(context.Background(), vc, models.ViolationRequest{ViolationType: models.ViolationTabSwitch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.AttemptID != vc.AttemptID || entry.StudentID != vc.StudentID || entry.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	if pub.channel != AntiCheatChannel || len(pub.messages) != 1 {
		t.Fatalf("expected one event on %s, got %d on %q", AntiCheatChannel, len(pub.messages), pub.channel)
	}
	var msg struct {
		Type    string              `json:"type"`
		Payload models.AntiCheatLog `json:"payload"`
	}
	if err := json.Unmarshal(pub.messages[0], &msg); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if msg.Type != models.WSAntiCheatViolation || msg.Payload.ViolationType != models.ViolationTabSwitch {
		t.Fatalf("unexpected event %+v", msg)
	}
}

func TestAntiCheatService_RecordRejectsUnknownType(t *testing.T) {
	store := &stubViolationStore{}
	svc := NewAntiCheatService(store, stubFlagged{}, &fakePublisher{}, nil)

	_, err := svc.Record(context.Background(), violationContext(), models.ViolationRequest{ViolationType: "sneezing"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["violation_type"] == "" {
		t.Fatalf("expected violation_type validation error, got %v", err)
	}
	if len(store.recorded) != 0 {
		t.Fatal("expected nothing to be stored")
	}
}

func TestAntiCheatService_RecordUnknownAttempt(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewAntiCheatService(&stubViolationStore{recordErr: pgx.ErrNoRows}, stubFlagged{}, pub, nil)

	_, err := svc.Record(context.Background(), violationContext(), models.ViolationRequest{ViolationType: models.ViolationCopyPaste})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatal("expected no event for a rejected report")
	}
}

func TestAntiCheatService_PublishFailureIsNotFatal(t *testing.T) {
	svc := NewAntiCheatService(&stubViolationStore{}, stubFlagged{}, &fakePublisher{err: errors.New("redis down")}, nil)

	if _, err := svc.Record(context.Background(), violationContext(), models.ViolationRequest{ViolationType: models.ViolationRightClick}); err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
}

func TestAntiCheatService_Overview(t *testing.T) {
	student := uuid.New()
	store := &stubViolationStore{recent: []models.AntiCheatLog{
		{ID: uuid.New(), StudentID: student, StudentName: "Ada", ViolationType: models.ViolationTabSwitch},
		{ID: uuid.New(), StudentID: uuid.New(), StudentName: "Bob", ViolationType: models.ViolationTabSwitch},
		{ID: uuid.New(), StudentID: student, StudentName: "Ada", ViolationType: models.ViolationCopyPaste},
	}}
	svc := NewAntiCheatService(store, stubFlagged{}, nil, nil)

	overview, err := svc.Overview(context.Background(), analytics.LogFilter{Search: "ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overview.Logs) != 2 {
		t.Fatalf("expected 2 filtered logs, got %d", len(overview.Logs))
	}
	if overview.Summary.TotalViolations != 3 || overview.Summary.UniqueStudents != 2 {
		t.Fatalf("expected summary over all recent logs, got %+v", overview.Summary)
	}
	if overview.Summary.MostCommonType != models.ViolationTabSwitch {
		t.Fatalf("unexpected most common type %q", overview.Summary.MostCommonType)
	}
	if overview.FlaggedAttempts == nil {
		t.Fatal("expected empty flagged list, not nil")
	}
}

func TestAntiCheatService_OverviewFailure(t *testing.T) {
	svc := NewAntiCheatService(&stubViolationStore{listErr: errors.New("boom")}, stubFlagged{}, nil, nil)

	if _, err := svc.Overview(context.Background(), analytics.LogFilter{}); err == nil {
		t.Fatal("expected error")
	}
}
