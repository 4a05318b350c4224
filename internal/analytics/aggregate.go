// Package analytics turns snapshots of test attempts and answers into the
// chart-ready summaries shown on student and staff dashboards.
//
// Every reduction is a pure function of its input. Percentages are rounded
// half away from zero and an empty denominator always yields 0.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"testquest-backend/internal/models"
)

const (
	// DailyWindow is the number of trailing days in daily activity.
	DailyWindow = 7
	// WeakThreshold is the accuracy below which a topic is weak.
	WeakThreshold = 50
)

// Scope selects the attempts a reduction considers. The zero value is the
// whole platform.
type Scope struct {
	StudentID uuid.UUID
}

func AllStudents() Scope            { return Scope{} }
func ForStudent(id uuid.UUID) Scope { return Scope{StudentID: id} }

func (s Scope) IsPlatform() bool { return s.StudentID == uuid.Nil }

func (s Scope) includes(id uuid.UUID) bool { return s.IsPlatform() || s.StudentID == id }

type OverviewStats struct {
	TotalStudents    int `json:"total_students"`
	TotalTests       int `json:"total_tests"`
	TotalAttempts    int `json:"total_attempts"`
	PassedAttempts   int `json:"passed_attempts"`
	AvgScore         int `json:"avg_score"`
	PassRate         int `json:"pass_rate"`
	FlaggedAttempts  int `json:"flagged_attempts"`
	TotalTimeSeconds int `json:"total_time_seconds"`
}

type TestPerformance struct {
	TestID   uuid.UUID `json:"test_id"`
	Title    string    `json:"title"`
	Attempts int       `json:"attempts"`
	AvgScore int       `json:"avg_score"`
	PassRate int       `json:"pass_rate"`
}

type DailyActivity struct {
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Attempts int    `json:"attempts"`
	Passed   int    `json:"passed"`
}

type TopicPerformance struct {
	TopicID     uuid.UUID `json:"topic_id"`
	TopicName   string    `json:"topic_name"`
	SubjectName string    `json:"subject_name"`
	Total       int       `json:"total_questions"`
	Correct     int       `json:"correct_answers"`
	Accuracy    int       `json:"accuracy"`
	Weak        bool      `json:"weak"`
}

type DifficultyPerformance struct {
	Difficulty models.Difficulty `json:"difficulty"`
	Total      int               `json:"total"`
	Correct    int               `json:"correct"`
	Accuracy   int               `json:"accuracy"`
}

type RankedStudent struct {
	Rank      int       `json:"rank"`
	StudentID uuid.UUID `json:"student_id"`
	Name      string    `json:"name"`
	AvgScore  int       `json:"avg_score"`
	Tests     int       `json:"tests"`
}

type HistoryPoint struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	TestTitle string    `json:"test_title"`
	Date      time.Time `json:"date"`
	Score     int       `json:"score"`
}

// Percent is round(100*part/total), or 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// Average is round(sum/n), or 0 when n is 0.
func Average(sum float64, n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Round(sum / float64(n)))
}

// Eligible keeps scored attempts inside scope, preserving order.
func Eligible(attempts []models.TestAttempt, scope Scope) []models.TestAttempt {
	out := make([]models.TestAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Status.Scored() && scope.includes(a.StudentID) {
			out = append(out, a)
		}
	}
	return out
}

// Overview reduces eligible attempts. Student and test totals come from
// elsewhere and are left zero.
func Overview(attempts []models.TestAttempt) OverviewStats {
	var stats OverviewStats
	var sum float64
	for _, a := range attempts {
		stats.TotalAttempts++
		sum += a.Percentage
		stats.TotalTimeSeconds += a.TimeTakenSeconds
		if a.IsPassed {
			stats.PassedAttempts++
		}
		if a.IsFlagged {
			stats.FlaggedAttempts++
		}
	}
	stats.AvgScore = Average(sum, stats.TotalAttempts)
	stats.PassRate = Percent(stats.PassedAttempts, stats.TotalAttempts)
	return stats
}

type scoreGroup struct {
	count  int
	passed int
	sum    float64
}

func (g *scoreGroup) add(a models.TestAttempt) {
	g.count++
	g.sum += a.Percentage
	if a.IsPassed {
		g.passed++
	}
}

// ByTest groups attempts per test in order of first appearance. Titles are
// returned untruncated.
func ByTest(attempts []models.TestAttempt) []TestPerformance {
	groups := make(map[uuid.UUID]*scoreGroup)
	titles := make(map[uuid.UUID]string)
	order := make([]uuid.UUID, 0)
	for _, a := range attempts {
		g, ok := groups[a.TestID]
		if !ok {
			g = &scoreGroup{}
			groups[a.TestID] = g
			titles[a.TestID] = a.TestTitle
			order = append(order, a.TestID)
		}
		g.add(a)
	}

	out := make([]TestPerformance, 0, len(order))
	for _, id := range order {
		g := groups[id]
		title := titles[id]
		if title == "" {
			title = "Unknown"
		}
		out = append(out, TestPerformance{
			TestID:   id,
			Title:    title,
			Attempts: g.count,
			AvgScore: Average(g.sum, g.count),
			PassRate: Percent(g.passed, g.count),
		})
	}
	return out
}

// Daily buckets attempts into the DailyWindow calendar days ending today in
// loc. The result always has DailyWindow entries, oldest first.
func Daily(attempts []models.TestAttempt, now time.Time, loc *time.Location) []DailyActivity {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(DailyWindow - 1))

	out := make([]DailyActivity, DailyWindow)
	index := make(map[string]int, DailyWindow)
	for i := range out {
		day := start.AddDate(0, 0, i)
		key := day.Format(time.DateOnly)
		out[i] = DailyActivity{Date: key, Weekday: day.Format("Mon")}
		index[key] = i
	}

	for _, a := range attempts {
		i, ok := index[a.ActivityAt().In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		out[i].Attempts++
		if a.IsPassed {
			out[i].Passed++
		}
	}
	return out
}

type answerGroup struct {
	total   int
	correct int
}

func (g *answerGroup) add(correct bool) {
	g.total++
	if correct {
		g.correct++
	}
}

// Topics groups answers per topic, sorted by ascending accuracy. Answers
// without a joined question or topic are skipped.
func Topics(answers []models.Answer) []TopicPerformance {
	groups := make(map[uuid.UUID]*answerGroup)
	meta := make(map[uuid.UUID]*models.Topic)
	order := make([]uuid.UUID, 0)
	for _, ans := range answers {
		if ans.Question == nil || ans.Question.Topic == nil {
			continue
		}
		topic := ans.Question.Topic
		g, ok := groups[topic.ID]
		if !ok {
			g = &answerGroup{}
			groups[topic.ID] = g
			meta[topic.ID] = topic
			order = append(order, topic.ID)
		}
		g.add(ans.IsCorrect)
	}

	out := make([]TopicPerformance, 0, len(order))
	for _, id := range order {
		g := groups[id]
		subject := meta[id].SubjectName
		if subject == "" {
			subject = "Unknown"
		}
		accuracy := Percent(g.correct, g.total)
		out = append(out, TopicPerformance{
			TopicID:     id,
			TopicName:   meta[id].Name,
			SubjectName: subject,
			Total:       g.total,
			Correct:     g.correct,
			Accuracy:    accuracy,
			Weak:        accuracy < WeakThreshold,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Accuracy < out[j].Accuracy })
	return out
}

// WeakTopics names up to limit weak topics, weakest first. topics must be
// sorted as returned by Topics.
func WeakTopics(topics []TopicPerformance, limit int) []string {
	out := make([]string, 0)
	for _, t := range topics {
		if limit > 0 && len(out) >= limit {
			break
		}
		if t.Weak {
			out = append(out, t.TopicName)
		}
	}
	return out
}

// Difficulties always returns easy, medium and hard in that order. Labels are
// matched case-insensitively. A question without a difficulty counts as
// medium; unknown tiers are ignored.
func Difficulties(answers []models.Answer) []DifficultyPerformance {
	groups := make(map[models.Difficulty]*answerGroup, len(models.Difficulties))
	for _, d := range models.Difficulties {
		groups[d] = &answerGroup{}
	}

	for _, ans := range answers {
		if ans.Question == nil {
			continue
		}
		d := models.Difficulty(strings.ToLower(strings.TrimSpace(string(ans.Question.Difficulty))))
		if d == "" {
			d = models.DifficultyMedium
		}
		if g, ok := groups[d]; ok {
			g.add(ans.IsCorrect)
		}
	}

	out := make([]DifficultyPerformance, 0, len(models.Difficulties))
	for _, d := range models.Difficulties {
		g := groups[d]
		out = append(out, DifficultyPerformance{
			Difficulty: d,
			Total:      g.total,
			Correct:    g.correct,
			Accuracy:   Percent(g.correct, g.total),
		})
	}
	return out
}

// RankStudents orders every student by descending average score. Ties keep
// the order in which students first appear in attempts.
func RankStudents(attempts []models.TestAttempt) []RankedStudent {
	groups := make(map[uuid.UUID]*scoreGroup)
	names := make(map[uuid.UUID]string)
	order := make([]uuid.UUID, 0)
	for _, a := range attempts {
		g, ok := groups[a.StudentID]
		if !ok {
			g = &scoreGroup{}
			groups[a.StudentID] = g
			names[a.StudentID] = a.StudentName
			order = append(order, a.StudentID)
		}
		g.add(a)
	}

	out := make([]RankedStudent, 0, len(order))
	for _, id := range order {
		g := groups[id]
		name := names[id]
		if name == "" {
			name = "Unknown"
		}
		out = append(out, RankedStudent{
			StudentID: id,
			Name:      name,
			AvgScore:  Average(g.sum, g.count),
			Tests:     g.count,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgScore > out[j].AvgScore })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Top returns the first limit entries; limit <= 0 returns all of them.
func Top(ranked []RankedStudent, limit int) []RankedStudent {
	if limit <= 0 || limit >= len(ranked) {
		return ranked
	}
	return ranked[:limit]
}

// RankOf finds studentID in ranked.
func RankOf(ranked []RankedStudent, studentID uuid.UUID) (RankedStudent, bool) {
	for _, r := range ranked {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return RankedStudent{}, false
}

// History returns the limit most recent attempts, oldest first.
func History(attempts []models.TestAttempt, limit int) []HistoryPoint {
	sorted := make([]models.TestAttempt, len(attempts))
	copy(sorted, attempts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ActivityAt().After(sorted[j].ActivityAt())
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]HistoryPoint, len(sorted))
	for i, a := range sorted {
		title := a.TestTitle
		if title == "" {
			title = "Unknown"
		}
		out[len(sorted)-1-i] = HistoryPoint{
			AttemptID: a.ID,
			TestTitle: title,
			Date:      a.ActivityAt(),
			Score:     int(math.Round(a.Percentage)),
		}
	}
	return out
}
