package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/ziadkadry99/clove/internal/rag"
)

// Reporter provides progress feedback during an index run.
type Reporter interface {
	Update(phase rag.Phase, done, total int)
	Finish()
}

// NewReporter returns a CIReporter if the CI environment variable is set,
// or a TerminalReporter otherwise. Both write to w.
func NewReporter(w io.Writer) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{w: w}
	}
	return &TerminalReporter{w: w}
}

// Func adapts r to a rag.ProgressFunc.
func Func(r Reporter) rag.ProgressFunc {
	return r.Update
}

func describe(phase rag.Phase) string {
	switch phase {
	case rag.PhaseWalk:
		return "Walking files"
	case rag.PhaseChunk:
		return "Chunking files"
	case rag.PhaseEmbed:
		return "Embedding chunks"
	case rag.PhaseStore:
		return "Storing points"
	}
	return string(phase)
}

// TerminalReporter displays one progress bar per phase.
type TerminalReporter struct {
	w     io.Writer
	phase rag.Phase
	bar   *progressbar.ProgressBar
}

func (r *TerminalReporter) Update(phase rag.Phase, done, total int) {
	if phase != r.phase || r.bar == nil {
		r.Finish()
		r.phase = phase
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionSetDescription(describe(phase)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = r.bar.Set(done)
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	w      io.Writer
	phases int
}

func (r *CIReporter) Update(phase rag.Phase, done, total int) {
	r.phases++
	fmt.Fprintf(r.w, "[%s] %s: %d/%d\n", phase, describe(phase), done, total)
}

func (r *CIReporter) Finish() {
	if r.phases > 0 {
		fmt.Fprintln(r.w, "Indexing complete")
	}
}
