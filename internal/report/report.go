// Package report renders coverage state and lane trees for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/lane"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("247")).Width(20)
	countStyle = lipgloss.NewStyle().Align(lipgloss.Right).Width(8)
	faintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("247")).Faint(true)

	statusStyles = map[coverage.Status]lipgloss.Style{
		coverage.StatusSuccess:           countStyle.Copy().Foreground(lipgloss.Color("71")),
		coverage.StatusTransientFailure:  countStyle.Copy().Foreground(lipgloss.Color("178")),
		coverage.StatusPersistentFailure: countStyle.Copy().Foreground(lipgloss.Color("167")),
	}
)

// statusOrder is the row order of the coverage table.
var statusOrder = []coverage.Status{
	coverage.StatusSuccess,
	coverage.StatusTransientFailure,
	coverage.StatusPersistentFailure,
}

// Coverage writes one table of coverage record counts. last may be nil.
func Coverage(w io.Writer, title string, counts catalog.StatusCounts, last *catalog.Timestamp, now time.Time) error {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")

	total := 0
	for _, status := range statusOrder {
		n := counts[status]
		total += n
		sb.WriteString(row(string(status), statusStyles[status].Render(humanize.Comma(int64(n)))))
	}
	// Statuses written by something newer than this binary still count.
	for status, n := range counts {
		if _, known := statusStyles[status]; !known {
			total += n
			sb.WriteString(row(string(status), countStyle.Render(humanize.Comma(int64(n)))))
		}
	}
	sb.WriteString(row("total", countStyle.Render(humanize.Comma(int64(total)))))

	if last != nil {
		sb.WriteString(faintStyle.Render(fmt.Sprintf("last sweep %s (run %s)",
			humanize.RelTime(last.FinishedAt, now, "ago", "from now"), last.RunID)))
	} else {
		sb.WriteString(faintStyle.Render("never swept"))
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value) + "\n"
}

// LaneTree writes the lane hierarchy rooted at the top-level lanes, one lane
// per line, with the lane's size and a marker on hidden lanes.
func LaneTree(w io.Writer, lanes []*lane.Lane) error {
	var sb strings.Builder
	var roots []*lane.Lane
	for _, l := range lanes {
		if l.Parent() == nil {
			roots = append(roots, l)
		}
	}
	for i, l := range roots {
		writeLane(&sb, l, "", i == len(roots)-1, 0)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// maxTreeDepth stops a parent loop from recursing forever.
const maxTreeDepth = 32

func writeLane(sb *strings.Builder, l *lane.Lane, prefix string, last bool, depth int) {
	if depth > maxTreeDepth {
		return
	}
	branch, next := "├── ", "│   "
	if last {
		branch, next = "└── ", "    "
	}
	if depth == 0 {
		branch, next = "", ""
	}

	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(titleStyle.Render(l.DisplayName))
	sb.WriteString(" ")
	sb.WriteString(faintStyle.Render("#" + strconv.FormatInt(l.ID, 10) + " · " + humanize.Comma(int64(l.Size)) + " works"))
	if !l.Visible {
		sb.WriteString(" ")
		sb.WriteString(faintStyle.Render("(hidden)"))
	}
	sb.WriteString("\n")

	subs := l.Sublanes()
	for i, c := range subs {
		writeLane(sb, c, prefix+next, i == len(subs)-1, depth+1)
	}
}

// Explain writes a lane's settings.
func Explain(w io.Writer, l *lane.Lane) error {
	full, err := lane.FullIdentifier(l)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(full))
	sb.WriteString("\n")
	for _, line := range l.Explain() {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	_, err = io.WriteString(w, sb.String())
	return err
}
