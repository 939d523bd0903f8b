package session

import (
	"sync"
)

// Event types delivered to participants.
const (
	EventDocumentContent = "document-content"
	EventContentChange   = "content-change"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventCompileSuccess  = "compile-success"
	EventCompileError    = "compile-error"
	EventError           = "error"
)

// Event is a transport-agnostic message for one participant.
type Event struct {
	Type       string
	DocumentID string
	From       string
	Title      string
	Content    string
	Operation  string
	Payload    map[string]any
}

// Sink writes events to the participant's connection. Deliver is only ever
// called from the participant's own pump goroutine.
type Sink interface {
	Deliver(Event) error
	Close() error
}

// Participant is a connection-scoped identity with a bounded outbound queue.
// Enqueueing never blocks; a single pump goroutine drains the queue in order.
type Participant struct {
	ID string

	sink      Sink
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
}

const DefaultQueueSize = 256

func NewParticipant(id string, sink Sink, queueSize int) *Participant {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Participant{
		ID:    id,
		sink:  sink,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Send enqueues ev. It reports false when the participant is closed or its
// queue is full.
func (p *Participant) Send(ev Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- ev:
		return true
	default:
		return false
	}
}

// Run drains the queue into the sink until Close or a delivery error. The sink
// is closed on return.
func (p *Participant) Run() {
	defer p.sink.Close()
	for {
		select {
		case ev := <-p.queue:
			if err := p.sink.Deliver(ev); err != nil {
				p.Close()
				return
			}
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain flushes whatever was queued before Close so final frames (errors,
// compile results) still reach a healthy connection.
func (p *Participant) drain() {
	for {
		select {
		case ev := <-p.queue:
			if err := p.sink.Deliver(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Close stops the pump. Safe to call more than once.
func (p *Participant) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Done is closed once the participant has been closed.
func (p *Participant) Done() <-chan struct{} { return p.done }
