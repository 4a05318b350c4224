package models

import (
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptInProgress    AttemptStatus = "in_progress"
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptDisqualified  AttemptStatus = "disqualified"
)

// Scored reports whether attempts in this status count toward performance stats.
func (s AttemptStatus) Scored() bool {
	return s == AttemptSubmitted || s == AttemptAutoSubmitted
}

// ScoredStatuses is the status filter used by attempt queries.
var ScoredStatuses = []AttemptStatus{AttemptSubmitted, AttemptAutoSubmitted}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

type TestAttempt struct {
	ID                 uuid.UUID     `json:"id"`
	TestID             uuid.UUID     `json:"test_id"`
	TestTitle          string        `json:"test_title"`
	StudentID          uuid.UUID     `json:"student_id"`
	StudentName        string        `json:"student_name"`
	Status             AttemptStatus `json:"status"`
	StartedAt          time.Time     `json:"started_at"`
	SubmittedAt        *time.Time    `json:"submitted_at"`
	Percentage         float64       `json:"percentage"`
	IsPassed           bool          `json:"is_passed"`
	IsFlagged          bool          `json:"is_flagged"`
	FlagReason         *string       `json:"flag_reason,omitempty"`
	TimeTakenSeconds   int           `json:"time_taken_seconds"`
	TabSwitches        int           `json:"tab_switches"`
	FullscreenExits    int           `json:"fullscreen_exits"`
	CopyAttempts       int           `json:"copy_attempts"`
	RightClickAttempts int           `json:"right_click_attempts"`
}

// ActivityAt is the instant an attempt is bucketed under for daily activity.
func (a TestAttempt) ActivityAt() time.Time {
	if a.SubmittedAt != nil {
		return *a.SubmittedAt
	}
	return a.StartedAt
}

type Topic struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	SubjectID   uuid.UUID `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
}

type Question struct {
	ID         uuid.UUID  `json:"id"`
	Difficulty Difficulty `json:"difficulty"`
	TopicID    *uuid.UUID `json:"topic_id"`
	Topic      *Topic     `json:"topic,omitempty"`
}

type Answer struct {
	ID         uuid.UUID `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	IsCorrect  bool      `json:"is_correct"`
	Question   *Question `json:"question,omitempty"`
}
