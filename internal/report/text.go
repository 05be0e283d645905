package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"startup-positioning-map/internal/pipeline"
)

type TextWriter struct {
	out io.Writer
}

func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{out: out}
}

func (w *TextWriter) WriteRuns(runs []pipeline.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w.out, "No pipeline runs recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tSTATUS\tDURATION\tSTAGES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(timeLayout),
			r.Mode,
			r.Status,
			runDuration(r),
			stageOutcomes(r),
		)
	}
	return tw.Flush()
}
