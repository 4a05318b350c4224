package analytics

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"testquest-backend/internal/models"
)

type ViolationSummary struct {
	TotalViolations int                  `json:"total_violations"`
	UniqueStudents  int                  `json:"unique_students"`
	MostCommonType  models.ViolationType `json:"most_common_type,omitempty"`
	ByType          []ViolationCount     `json:"by_type"`
}

type ViolationCount struct {
	Type  models.ViolationType `json:"type"`
	Count int                  `json:"count"`
}

// SummarizeViolations counts logs per type. ByType is sorted by descending
// count; equal counts keep first-appearance order, so MostCommonType is the
// earliest seen among the most frequent.
func SummarizeViolations(logs []models.AntiCheatLog) ViolationSummary {
	counts := make(map[models.ViolationType]int)
	order := make([]models.ViolationType, 0)
	students := make(map[uuid.UUID]struct{})
	for _, l := range logs {
		if _, ok := counts[l.ViolationType]; !ok {
			order = append(order, l.ViolationType)
		}
		counts[l.ViolationType]++
		students[l.StudentID] = struct{}{}
	}

	summary := ViolationSummary{
		TotalViolations: len(logs),
		UniqueStudents:  len(students),
		ByType:          make([]ViolationCount, 0, len(order)),
	}
	for _, t := range order {
		summary.ByType = append(summary.ByType, ViolationCount{Type: t, Count: counts[t]})
	}
	sort.SliceStable(summary.ByType, func(i, j int) bool {
		return summary.ByType[i].Count > summary.ByType[j].Count
	})
	if len(summary.ByType) > 0 {
		summary.MostCommonType = summary.ByType[0].Type
	}
	return summary
}

// LogFilter narrows anti-cheat logs. Empty fields match everything.
type LogFilter struct {
	Search string
	Type   models.ViolationType
}

// FilterLogs keeps logs whose student name or email contains Search
// (case-insensitive) and whose type equals Type.
func FilterLogs(logs []models.AntiCheatLog, f LogFilter) []models.AntiCheatLog {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.AntiCheatLog, 0, len(logs))
	for _, l := range logs {
		if f.Type != "" && l.ViolationType != f.Type {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(l.StudentName), search) &&
			!strings.Contains(strings.ToLower(l.StudentEmail), search) {
			continue
		}
		out = append(out, l)
	}
	return out
}
