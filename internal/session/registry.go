// Package session holds the live state of documents that have connected
// participants: content, participant set, broadcast fan-out and write-back.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab/pkg/metrics"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoSession      = errors.New("no live session for document")
	ErrNotParticipant = errors.New("not a participant of this document")
	ErrShuttingDown   = errors.New("session registry is shutting down")
)

// Session is the in-memory state of one document.
//
// Lock order: flushMu, then mu, then Registry.mu. flushMu serializes durable
// writes so an older snapshot can never land after a newer one.
type Session struct {
	DocumentID string

	flushMu sync.Mutex

	mu            sync.Mutex
	title         string
	content       string
	participants  map[string]*Participant
	lastModified  time.Time
	revision      uint64
	persisted     uint64
	lastVersionAt time.Time
	debounce      *time.Timer
	closed        bool
}

// Snapshot is a consistent read of a session.
type Snapshot struct {
	DocumentID   string
	Title        string
	Content      string
	Participants []string
	LastModified time.Time
}

func (s *Session) snapshotLocked() Snapshot {
	ids := make([]string, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Snapshot{
		DocumentID:   s.DocumentID,
		Title:        s.title,
		Content:      s.content,
		Participants: ids,
		LastModified: s.lastModified,
	}
}

// Change is one content replacement submitted by a participant.
type Change struct {
	Content      string
	Operation    string
	Significance Significance
}

// Options configure a Registry. Zero values fall back to defaults.
type Options struct {
	DebounceDelay time.Duration
	SweepInterval time.Duration
	IOTimeout     time.Duration
	Policy        VersionPolicy

	Now  func() time.Time
	Rand func() float64
}

func (o *Options) defaults() {
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = 5 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 10 * time.Second
	}
	if o.Policy == (VersionPolicy{}) {
		o.Policy = DefaultVersionPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = defaultRand
	}
}

// Registry maps document ids to live sessions. It is constructed at process
// start, started with Start and torn down with Shutdown.
type Registry struct {
	store repository.Store
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool

	loads  singleflight.Group
	cron   *cron.Cron
	pruneW sync.WaitGroup
}

func NewRegistry(store repository.Store, opts Options) *Registry {
	opts.defaults()
	return &Registry{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

func (r *Registry) lookup(documentID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[documentID]
}

// GetOrCreate returns the live session for documentID, loading it from the
// store when absent. Concurrent first loads share one store read and at most
// one session is ever registered per document.
func (r *Registry) GetOrCreate(ctx context.Context, documentID string) (*Session, error) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if s := r.sessions[documentID]; s != nil {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	v, err, _ := r.loads.Do(documentID, func() (interface{}, error) {
		if s := r.lookup(documentID); s != nil {
			return s, nil
		}
		// the load is shared, so one caller's cancellation must not fail the others
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.IOTimeout)
		defer cancel()
		d, err := r.store.GetDocument(loadCtx, documentID)
		if err != nil {
			return nil, err
		}
		var lastVersionAt time.Time
		latest, err := r.store.ListVersions(loadCtx, documentID, 1)
		if err != nil {
			logger.Warnf("session: read latest version of %s: %v", documentID, err)
		} else if len(latest) > 0 {
			lastVersionAt = latest[0].CreatedAt
		}
		return r.insert(d, lastVersionAt), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// insert registers a session built from d unless one already exists. The
// quiet-interval clock runs from the newest stored version, or from now when
// the document has none.
func (r *Registry) insert(d *document.Document, lastVersionAt time.Time) *Session {
	now := r.opts.Now()
	if lastVersionAt.IsZero() {
		lastVersionAt = now
	}
	s := &Session{
		DocumentID:    d.ID,
		title:         d.Title,
		content:       d.Content,
		participants:  make(map[string]*Participant),
		lastModified:  now,
		lastVersionAt: lastVersionAt,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.sessions[d.ID]; existing != nil {
		return existing
	}
	r.sessions[d.ID] = s
	metrics.ActiveSessions.Inc()
	logger.Infof("session: loaded document %s into memory", d.ID)
	return s
}

// evict removes s from the map if it is still the registered session.
func (r *Registry) evict(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.DocumentID] == s {
		delete(r.sessions, s.DocumentID)
		metrics.ActiveSessions.Dec()
		logger.Infof("session: evicted document %s", s.DocumentID)
	}
}

// Join attaches p to the document session, pushes the current content to p
// and announces p to the other participants.
func (r *Registry) Join(ctx context.Context, documentID string, p *Participant) (Snapshot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		s, err := r.GetOrCreate(ctx, documentID)
		if err != nil {
			return Snapshot{}, err
		}
		s.mu.Lock()
		if s.closed {
			// lost a race with the last participant leaving; the flush is done, reload
			s.mu.Unlock()
			continue
		}
		if _, dup := s.participants[p.ID]; !dup {
			s.participants[p.ID] = p
			metrics.ConnectedParticipants.Inc()
		}
		snap := s.snapshotLocked()
		p.Send(Event{Type: EventDocumentContent, DocumentID: documentID, Title: s.title, Content: s.content})
		s.publishLocked(Event{Type: EventUserJoined, DocumentID: documentID, From: p.ID}, p.ID)
		s.mu.Unlock()
		logger.Infof("session: participant %s joined document %s (%d connected)", p.ID, documentID, len(snap.Participants))
		return snap, nil
	}
}

// Leave detaches a participant. When it was the last one, the current content
// is written to the store before the session is evicted. If that write fails
// the session stays registered without participants and the sweep retries.
func (r *Registry) Leave(ctx context.Context, documentID, participantID string) error {
	s := r.lookup(documentID)
	if s == nil {
		return nil
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[participantID]; !ok || s.closed {
		return nil
	}
	delete(s.participants, participantID)
	metrics.ConnectedParticipants.Dec()
	s.publishLocked(Event{Type: EventUserLeft, DocumentID: documentID, From: participantID}, participantID)
	logger.Infof("session: participant %s left document %s (%d connected)", participantID, documentID, len(s.participants))
	if len(s.participants) > 0 {
		return nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.IOTimeout)
	defer cancel()
	if err := r.writeLocked(wctx, s, "leave"); err != nil {
		logger.Errorf("session: final flush of %s failed, keeping it for the sweep: %v", documentID, err)
		return err
	}
	r.closeLocked(s)
	return nil
}

// closeLocked marks s closed and evicts it. Caller holds s.mu.
func (r *Registry) closeLocked(s *Session) {
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	r.evict(s)
}

// Replace overwrites the live content (last write wins), captures a version
// when the policy says so, broadcasts the change to the other participants
// and re-arms the debounced write-back.
func (r *Registry) Replace(ctx context.Context, documentID, participantID string, ch Change) error {
	s := r.lookup(documentID)
	if s == nil {
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNoSession
	}
	if _, ok := s.participants[participantID]; !ok {
		return ErrNotParticipant
	}
	// the shutdown flush may already have run; a later edit would never be written
	if r.isClosing() {
		return ErrShuttingDown
	}

	now := r.opts.Now()
	prev := s.content
	s.content = ch.Content
	s.lastModified = now
	s.revision++

	if reason, ok := r.opts.Policy.Evaluate(prev, ch.Content, s.lastVersionAt, now, ch.Significance); ok {
		r.captureLocked(ctx, s, prev, ch.Content, reason, participantID, now)
	}

	s.publishLocked(Event{
		Type:       EventContentChange,
		DocumentID: documentID,
		From:       participantID,
		Content:    ch.Content,
		Operation:  ch.Operation,
	}, participantID)
	r.armDebounceLocked(s)
	return nil
}

// LiveContent returns the current content for a participant of the session.
func (r *Registry) LiveContent(documentID, participantID string) (string, error) {
	s := r.lookup(documentID)
	if s == nil {
		return "", ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrNoSession
	}
	if _, ok := s.participants[participantID]; !ok {
		return "", ErrNotParticipant
	}
	return s.content, nil
}

// Snapshot returns the state of a live session.
func (r *Registry) Snapshot(documentID string) (Snapshot, bool) {
	s := r.lookup(documentID)
	if s == nil {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), true
}

// Participants lists the attached participant ids of a live session, sorted.
func (r *Registry) Participants(documentID string) []string {
	snap, ok := r.Snapshot(documentID)
	if !ok {
		return nil
	}
	return snap.Participants
}

// Send delivers ev to one participant of a live session.
func (r *Registry) Send(documentID, participantID string, ev Event) bool {
	s := r.lookup(documentID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return false
	}
	return p.Send(ev)
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) list() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
