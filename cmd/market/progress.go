package main

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/rxtech-lab/argo-history/pkg/marketdata"
)

// progressReporter renders marketdata progress callbacks as a terminal progress bar.
type progressReporter struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	total int
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out}
}

// OnProgress implements marketdata.OnProgress. A new total starts a new bar.
func (p *progressReporter) OnProgress(current float64, total float64, message string) {
	if p.bar == nil || int(total) != p.total {
		p.finish()

		p.total = int(total)
		p.bar = progressbar.NewOptions(p.total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(message),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(p.out, "\n") }),
		)
	}

	p.bar.Describe(message)
	_ = p.bar.Set(int(current))
}

func (p *progressReporter) finish() {
	if p.bar != nil && !p.bar.IsFinished() {
		_ = p.bar.Finish()
	}
}

var _ marketdata.OnProgress = (&progressReporter{}).OnProgress
