package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/streak/internal/app"
	"github.com/alexanderramin/streak/internal/decision"
)

const statusProgressBarWidth = 10

// FormatStatus formats a StatusResponse into a styled CLI dashboard string.
func FormatStatus(resp *app.StatusResponse) string {
	var b strings.Builder

	if len(resp.Habits) == 0 {
		b.WriteString(Dim("No habits yet. Add one with: streak habit add <name>") + "\n")
		return RenderBox("Status", b.String())
	}

	headers := []string{"HABIT", "PERIOD", "DONE", "TIMER", "PROGRESS", "LOGGED"}
	rows := make([][]string, 0, len(resp.Habits))
	for _, h := range resp.Habits {
		done := StyleDim.Render("·")
		if h.Completed {
			done = StyleGreen.Render("✓")
		}

		timer := ModeBadge(h.Mode)
		progress := Dim("--")
		if h.TimerState != decision.TimerIdle {
			timer = TimerIndicator(h.TimerState) + " " + FormatClock(h.ElapsedMs)
			if h.TargetMs > 0 {
				progress = RenderProgress(TargetFraction(h.ElapsedMs, h.TargetMs), statusProgressBarWidth)
			}
		}

		logged := Dim("--")
		if h.LoggedMs > 0 {
			logged = StyleFg.Render(FormatDuration(h.LoggedMs))
		}

		name := Bold(h.Name)
		if h.Archived {
			name = Dim(h.Name + " (archived)")
		}
		rows = append(rows, []string{name, Dim(h.PeriodKey), done, timer, progress, logged})
	}
	b.WriteString(RenderTable(headers, rows))

	s := resp.Summary
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s, %s\n",
		StyleGreen.Render(fmt.Sprintf("%d Done", s.CountsCompleted)),
		StyleYellow.Render(fmt.Sprintf("%d Pending", s.CountsPending)),
	))
	if s.LastError != "" {
		b.WriteString("\n" + StyleRed.Render("  ERROR: "+s.LastError) + "\n")
	}

	return RenderBox("Status", b.String())
}
