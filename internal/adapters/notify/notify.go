// Package notify delivers outbound text messages.
package notify

import (
	"context"
	"sync"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
)

// Sender delivers one message. It reports false when the message could not be
// handed to the transport; callers do not retry.
type Sender interface {
	Send(ctx context.Context, to, body string, origin model.Origin) bool
}

// LogSender writes messages to the log instead of a transport.
type LogSender struct {
	log logger.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.Get().Named("notify")}
}

func (s *LogSender) Send(ctx context.Context, to, body string, origin model.Origin) bool {
	s.log.Info(ctx, "outbound message",
		logger.String("to", to),
		logger.String("from", origin.Address),
		logger.String("body", body))
	return true
}

// Message is one recorded send.
type Message struct {
	To     string
	Body   string
	Origin model.Origin
}

// Recorder keeps every message in memory. Failing addresses can be set to
// simulate transport errors.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	failing  map[string]bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{failing: make(map[string]bool)}
}

func (r *Recorder) Send(ctx context.Context, to, body string, origin model.Origin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing[to] {
		return false
	}
	r.messages = append(r.messages, Message{To: to, Body: body, Origin: origin})
	return true
}

// Fail makes every send to address report failure.
func (r *Recorder) Fail(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[address] = true
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// To returns the bodies sent to address.
func (r *Recorder) To(address string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.To == address {
			out = append(out, m.Body)
		}
	}
	return out
}

// Reset forgets recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
