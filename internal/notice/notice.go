// Package notice delivers transient, dismissible user-facing messages.
package notice

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level classifies a notice.
type Level int

const (
	// Danger marks a failure the user should see.
	Danger Level = iota
	// Success marks a completed action.
	Success
)

func (l Level) String() string {
	if l == Success {
		return "ok"
	}
	return "error"
}

// Message is a single notice. Duration is how long a UI should keep it visible; zero means the UI default.
type Message struct {
	Level    Level
	Title    string
	Duration time.Duration
}

// Notifier posts notices.
type Notifier interface {
	Notify(m Message)
}

// Func adapts a function to Notifier.
type Func func(Message)

// Notify calls f(m).
func (f Func) Notify(m Message) { f(m) }

// Discard drops every notice.
var Discard Notifier = Func(func(Message) {})

// Writer prints notices as single lines.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Notifier printing to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Notify writes "[level] title".
func (p *Writer) Notify(m Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "[%s] %s\n", m.Level, m.Title)
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

// Notify records m.
func (r *Recorder) Notify(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

// Messages returns a copy of recorded notices.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}
