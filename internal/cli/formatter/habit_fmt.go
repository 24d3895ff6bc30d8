package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/streak/internal/domain"
)

// FormatHabitList renders habits with their timing policy.
func FormatHabitList(habits []*domain.Habit) string {
	if len(habits) == 0 {
		return Dim("No habits found.") + "\n"
	}

	headers := []string{"ID", "NAME", "FREQUENCY", "TIMER", "RULES"}
	rows := make([][]string, 0, len(habits))
	for _, h := range habits {
		name := Bold(h.Name)
		if h.IsArchived() {
			name = Dim(h.Name + " (archived)")
		}
		timer := ModeBadge(h.Policy.Mode)
		if target := h.Policy.TargetMs(); target > 0 {
			timer += " " + Dim(FormatDuration(target))
		}
		rows = append(rows, []string{
			Dim(TruncID(h.ID)),
			name,
			string(h.Frequency),
			timer,
			policyRules(h.Policy),
		})
	}
	return RenderTable(headers, rows)
}

func policyRules(p domain.TimingPolicy) string {
	var rules []string
	if minMs := p.MinMs(); minMs > 0 {
		rules = append(rules, fmt.Sprintf("min %s", FormatDuration(minMs)))
	}
	if p.AutoCompleteOnTarget {
		rules = append(rules, "auto-complete")
	}
	if p.RequireTimerToComplete {
		rules = append(rules, "timer required")
	}
	if len(rules) == 0 {
		return Dim("--")
	}
	return strings.Join(rules, ", ")
}
