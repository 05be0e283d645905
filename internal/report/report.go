// Package report renders recorded pipeline runs for the history command.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"startup-positioning-map/internal/pipeline"
)

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text or markdown)", s)
	}
}

// Writer renders a list of runs, newest first.
type Writer interface {
	WriteRuns(runs []pipeline.Run) error
}

func NewWriter(format Format, out io.Writer) Writer {
	if format == FormatMarkdown {
		return NewMarkdownWriter(out)
	}
	return NewTextWriter(out)
}

func runDuration(r pipeline.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func stageList(r pipeline.Run) string {
	if len(r.Stages) == 0 {
		return "(setup)"
	}
	names := make([]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		names = append(names, string(s))
	}
	return strings.Join(names, ",")
}

func stageOutcomes(r pipeline.Run) string {
	if len(r.Results) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		parts = append(parts, fmt.Sprintf("%s:%s", res.Stage, res.Status))
	}
	return strings.Join(parts, " ")
}

const timeLayout = "2006-01-02 15:04:05"
