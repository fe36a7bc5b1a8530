// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar is a progress bar that is redrawn whenever Display is
// called. It does not use concurrency and must be driven by the loop
// whose progress it shows.
type ProgressBar struct {
	out             io.Writer
	width           int
	maxProgress     int
	currentProgress int
	bar             strings.Builder
	startTime       time.Time
	label           string
}

// New returns a progress bar that is width characters wide, writes to
// out and reaches 100% after max units of progress
func New(out io.Writer, width, max int) *ProgressBar {
	if max < 1 {
		max = 1
	}
	return &ProgressBar{
		out:         out,
		width:       width,
		maxProgress: max,
		startTime:   time.Now(),
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() { p.Set(p.currentProgress + 1) }

// Set sets the progress counter, clipped to [0, max]
func (p *ProgressBar) Set(progress int) {
	switch {
	case progress < 0:
		progress = 0
	case progress > p.maxProgress:
		progress = p.maxProgress
	}
	p.currentProgress = progress
}

// Progress returns the fraction of the work done
func (p *ProgressBar) Progress() float64 {
	return float64(p.currentProgress) / float64(p.maxProgress)
}

// SetLabel sets a short status string shown after the bar
func (p *ProgressBar) SetLabel(label string) { p.label = label }

// String returns the bar as it would be displayed
func (p *ProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	filled := int(p.Progress() * float64(p.width))
	p.bar.WriteString(strings.Repeat("█", filled))
	p.bar.WriteString(strings.Repeat(" ", p.width-filled))
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v", p.Progress()*100,
		time.Since(p.startTime).Truncate(time.Second))
	if p.label != "" {
		fmt.Fprintf(&p.bar, " | %v", p.label)
	}
	p.bar.WriteString("]")
	return p.bar.String()
}

// Display redraws the progress bar on its line
func (p *ProgressBar) Display() {
	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.String())
}

// Close moves the output to the line after the bar
func (p *ProgressBar) Close() {
	fmt.Fprintln(p.out)
}
