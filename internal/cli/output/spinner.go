package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a progress indicator on a TTY. Start it, then end
// it exactly once with Success, Fail or Stop.
type Spinner struct {
	w       io.Writer
	msg     string
	styles  Styles
	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

// NewSpinner creates a spinner bound to the renderer's output writer.
// Callers should only start it in text mode.
func (r *Renderer) NewSpinner(msg string) *Spinner {
	return &Spinner{w: r.out, msg: msg, styles: r.styles}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	go s.spin(s.done)
}

func (s *Spinner) spin(done chan struct{}) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				_, _ = fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[i%len(spinnerFrames)], s.msg)
			}
			s.mu.Unlock()
			i++
		}
	}
}

// Success stops the spinner and prints a final success line.
func (s *Spinner) Success(msg string) {
	s.finish(s.styles.StatusSuccess.String(), msg)
}

// Fail stops the spinner and prints a final failure line.
func (s *Spinner) Fail(msg string) {
	s.finish(s.styles.StatusFailed.String(), msg)
}

// Stop halts the animation and clears the line without a final message.
func (s *Spinner) Stop() {
	s.finish("", "")
}

func (s *Spinner) finish(icon, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.done != nil {
		close(s.done)
	}
	_, _ = fmt.Fprint(s.w, "\r\033[K")
	if msg != "" {
		_, _ = fmt.Fprintf(s.w, "%s %s\n", icon, msg)
	}
}
