package console

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Progress counts processed items. A nil *Progress is valid and does nothing.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress returns a progress bar on stderr, or nil when stderr is not a
// terminal or debug output would interleave with it. max < 0 draws a spinner.
func NewProgress(max int64, description string) *Progress {
	if Debug || Verbose || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	return &Progress{bar: bar}
}

// Add advances the bar by n.
func (p *Progress) Add(n int) {
	if p == nil {
		return
	}
	_ = p.bar.Add(n)
}

// Finish completes and clears the bar.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
