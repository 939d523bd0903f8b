package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	delivered atomic.Int32
	closed    atomic.Bool
}

func (s *failingSink) Deliver(Event) error {
	if s.delivered.Add(1) > 1 {
		return errors.New("broken pipe")
	}
	return nil
}

func (s *failingSink) Close() error {
	s.closed.Store(true)
	return nil
}

func TestParticipantSendIsBounded(t *testing.T) {
	p := NewParticipant("p", &recordSink{}, 2)
	assert.True(t, p.Send(Event{Type: EventContentChange}))
	assert.True(t, p.Send(Event{Type: EventContentChange}))
	assert.False(t, p.Send(Event{Type: EventContentChange}))
	p.Close()
	p.Close()
	assert.False(t, p.Send(Event{Type: EventContentChange}))
}

func TestParticipantRunDrainsOnClose(t *testing.T) {
	sink := &recordSink{}
	p := NewParticipant("p", sink, 4)
	require.True(t, p.Send(Event{Type: EventCompileError}))
	p.Close()
	p.Run()
	assert.Len(t, sink.ofType(EventCompileError), 1)
	assert.True(t, sink.closed)
}

func TestParticipantStopsOnDeliveryError(t *testing.T) {
	sink := &failingSink{}
	p := NewParticipant("p", sink, 4)
	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()
	p.Send(Event{Type: EventContentChange})
	p.Send(Event{Type: EventContentChange})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
	assert.True(t, sink.closed.Load())
	<-p.Done()
}
