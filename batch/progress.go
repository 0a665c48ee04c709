package batch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nachoal/simple-batch-go/executor"
)

// progress prints one line per completed task. It is owned by a single
// goroutine and needs no locking.
type progress struct {
	w         io.Writer
	total     int
	completed int
	succeeded int
	failed    int
	start     time.Time
	now       func() time.Time
}

func newProgress(w io.Writer, total int, start time.Time, now func() time.Time) *progress {
	return &progress{w: w, total: total, start: start, now: now}
}

func (p *progress) report(o executor.Outcome) {
	p.completed++
	if o.Success {
		p.succeeded++
	} else {
		p.failed++
	}

	mark := "✓"
	detail := fmt.Sprintf("%d image(s)", o.Downloads)
	if !o.Success {
		mark = "✗"
		detail = errString(o.Err)
	}
	fmt.Fprintf(p.w, "%s %s [%s] %.1fs %s\n", mark, o.Name, o.ID, o.Duration.Seconds(), detail)

	elapsed := p.now().Sub(p.start)
	avg := elapsed / time.Duration(p.completed)
	eta := avg * time.Duration(p.total-p.completed)
	pct := float64(p.completed) / float64(p.total) * 100

	fmt.Fprintf(p.w, "Progress: %d/%d (%.1f%%) | ok %d failed %d | avg %.1fs | elapsed %s | ETA %s\n",
		p.completed, p.total, pct, p.succeeded, p.failed, avg.Seconds(), formatClock(elapsed), formatClock(eta))
}

// formatClock renders a duration as h:mm:ss
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

func errString(err error) string {
	if err == nil {
		return "failed"
	}
	return err.Error()
}

func printSummary(w io.Writer, s Summary) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Batch complete")
	fmt.Fprintf(w, "  Run:       %s\n", s.RunID)
	fmt.Fprintf(w, "  Total:     %d\n", s.Total)
	fmt.Fprintf(w, "  Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(w, "  Failed:    %d\n", s.Failed)
	fmt.Fprintf(w, "  Duration:  %s\n", formatClock(s.Duration))
	if s.OutputDir != "" {
		fmt.Fprintf(w, "  Output:    %s\n", s.OutputDir)
	}
	fmt.Fprintln(w, rule)
}
