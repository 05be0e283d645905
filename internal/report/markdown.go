package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"startup-positioning-map/internal/pipeline"
)

type MarkdownWriter struct {
	out io.Writer
}

func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

func (w *MarkdownWriter) WriteRuns(runs []pipeline.Run) error {
	md := markdown.NewMarkdown(w.out)
	md.H1("Pipeline Runs")
	md.PlainText("")

	if len(runs) == 0 {
		md.Note("No pipeline runs recorded yet.")
		return md.Build()
	}

	rows := make([][]string, 0, len(runs))
	failed := 0
	for _, r := range runs {
		if r.Status != pipeline.RunSucceeded {
			failed++
		}
		rows = append(rows, []string{
			"`" + r.ID + "`",
			r.StartedAt.UTC().Format(timeLayout) + " UTC",
			string(r.Mode),
			statusText(r.Status),
			runDuration(r),
			stageList(r),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Run", "Started", "Mode", "Status", "Duration", "Stages"},
		Rows:   rows,
	})
	md.PlainText("")

	if failed > 0 {
		md.Warningf("%d of %d runs did not succeed.", failed, len(runs))
		md.PlainText("")
	}

	for _, r := range runs {
		w.writeRun(md, r)
	}
	return md.Build()
}

func (w *MarkdownWriter) writeRun(md *markdown.Markdown, r pipeline.Run) {
	md.H2("Run " + r.ID)
	md.PlainText("")
	if r.Bootstrap != "" {
		md.PlainText("Bootstrap: " + string(r.Bootstrap))
		md.PlainText("")
	}

	if len(r.Results) > 0 {
		rows := make([][]string, 0, len(r.Results))
		for _, res := range r.Results {
			rows = append(rows, []string{
				strconv.Itoa(res.Position + 1),
				string(res.Stage),
				string(res.Status),
				res.Duration.String(),
				res.Error,
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"#", "Stage", "Status", "Duration", "Error"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if r.Error != "" {
		md.CodeBlocks(markdown.SyntaxHighlightText, r.Error)
		md.PlainText("")
	}
}

func statusText(s pipeline.RunStatus) string {
	switch s {
	case pipeline.RunSucceeded:
		return "✅ succeeded"
	case pipeline.RunFailed:
		return "❌ failed"
	case pipeline.RunEnvironmentError:
		return "❌ environment error"
	case pipeline.RunCancelled:
		return "⚠️ cancelled"
	default:
		return string(s)
	}
}
