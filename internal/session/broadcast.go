package session

import (
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab/pkg/metrics"
)

// publishLocked enqueues ev for every participant except exclude. Caller holds
// s.mu, so events for one document are enqueued in the order they were
// applied. A participant whose queue is full is disconnected rather than
// allowed to stall the others.
func (s *Session) publishLocked(ev Event, exclude string) {
	metrics.BroadcastEvents.WithLabelValues(ev.Type).Inc()
	for id, p := range s.participants {
		if id == exclude {
			continue
		}
		if !p.Send(ev) {
			metrics.BroadcastDropped.Inc()
			logger.Warnf("session: dropping slow participant %s on document %s", id, s.DocumentID)
			p.Close()
		}
	}
}

// Publish fans ev out to the participants of a live session, skipping exclude
// (pass "" to reach everyone). It reports false when no session is live.
func (r *Registry) Publish(documentID string, ev Event, exclude string) bool {
	s := r.lookup(documentID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if ev.DocumentID == "" {
		ev.DocumentID = documentID
	}
	s.publishLocked(ev, exclude)
	return true
}
