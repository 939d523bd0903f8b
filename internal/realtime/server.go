package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/access"
	"github.com/gogotex/gogotex/backend/collab/internal/collab"
	"github.com/gogotex/gogotex/backend/collab/internal/compile"
	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/internal/session"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options tune connection handling. Zero values fall back to defaults.
type Options struct {
	QueueSize       int
	HideNotFound    bool
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

func (o *Options) defaults() {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 8 << 20
	}
}

// Server upgrades HTTP requests and serves one participant per connection.
type Server struct {
	svc      *collab.Service
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewServer(svc *collab.Service, opts Options) *Server {
	opts.defaults()
	return &Server{
		svc:   svc,
		opts:  opts,
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("realtime: upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
		s.serve(conn)
	}()
}

// Shutdown refuses new upgrades, closes every open connection and waits for
// their handlers to return. Each handler leaves its document on the way out,
// so the last participant's edits are written before this returns.
// http.Server.Shutdown does not reach hijacked connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		open = append(open, conn)
	}
	s.mu.Unlock()

	logger.Infof("realtime: closing %d connections", len(open))
	for _, conn := range open {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.opts.WriteWait))
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sink writes events to the socket. Deliver is only called by the
// participant pump; pings go through WriteControl which may run concurrently.
type sink struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (k *sink) Deliver(ev session.Event) error {
	_ = k.conn.SetWriteDeadline(time.Now().Add(k.writeWait))
	return k.conn.WriteJSON(encode(ev))
}

func (k *sink) Close() error {
	_ = k.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(k.writeWait))
	return k.conn.Close()
}

// connection is the per-socket state owned by the read loop.
type connection struct {
	srv  *Server
	conn *websocket.Conn
	p    *session.Participant
	doc  string

	compiles sync.WaitGroup
}

func (s *Server) serve(conn *websocket.Conn) {
	id := uuid.NewString()
	p := session.NewParticipant(id, &sink{conn: conn, writeWait: s.opts.WriteWait}, s.opts.QueueSize)
	c := &connection{srv: s, conn: conn, p: p}
	logger.Infof("realtime: participant %s connected from %s", id, conn.RemoteAddr())

	pumpDone := make(chan struct{})
	go func() {
		p.Run()
		close(pumpDone)
	}()
	stopPing := make(chan struct{})
	go c.ping(stopPing)

	c.readLoop()

	close(stopPing)
	if c.doc != "" {
		c.leave()
	}
	c.compiles.Wait()
	p.Close()
	<-pumpDone
	logger.Infof("realtime: participant %s disconnected", id)
}

func (c *connection) ping(stop <-chan struct{}) {
	t := time.NewTicker(c.srv.opts.PongWait * 9 / 10)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.srv.opts.WriteWait)); err != nil {
				return
			}
		case <-c.p.Done():
			return
		case <-stop:
			return
		}
	}
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(c.srv.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.opts.PongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("realtime: participant %s read: %v", c.p.ID, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.opts.PongWait))
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.p.Send(errorEvent("malformed message"))
			continue
		}
		c.dispatch(f)
	}
}

func (c *connection) dispatch(f Frame) {
	switch f.Type {
	case TypeJoinDocument:
		var req joinRequest
		if !c.decode(f, &req) {
			return
		}
		c.join(req)
	case TypeContentChange:
		var req changeRequest
		if !c.decode(f, &req) {
			return
		}
		c.change(req)
	case TypeCompileRequest:
		var req documentRequest
		if !c.decode(f, &req) {
			return
		}
		c.compile(req)
	case TypeLeaveDocument:
		if c.doc != "" {
			c.leave()
		}
	case TypeTestEvent:
		var payload any
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &payload)
		}
		c.p.Send(session.Event{Type: TypeTestResponse, Payload: map[string]any{
			"message":   "Test response from server",
			"received":  payload,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}})
	default:
		c.p.Send(errorEvent("unknown message type"))
	}
}

func (c *connection) decode(f Frame, v any) bool {
	if len(f.Data) == 0 || json.Unmarshal(f.Data, v) != nil {
		c.p.Send(errorEvent("malformed " + f.Type + " message"))
		return false
	}
	return true
}

func (c *connection) join(req joinRequest) {
	if req.DocumentID == "" {
		c.p.Send(errorEvent("documentId is required"))
		return
	}
	if c.doc == req.DocumentID {
		return
	}
	if c.doc != "" {
		c.leave()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var err error
	if req.Ticket != "" {
		_, err = c.srv.svc.JoinWithTicket(ctx, req.DocumentID, req.Ticket, c.p)
	} else {
		_, err = c.srv.svc.JoinDocument(ctx, req.DocumentID, req.Password, c.p)
	}
	if err != nil {
		logger.Infof("realtime: participant %s could not join %s: %v", c.p.ID, req.DocumentID, err)
		c.p.Send(errorEvent(c.joinError(err)))
		return
	}
	c.doc = req.DocumentID
}

func (c *connection) joinError(err error) string {
	hide := c.srv.opts.HideNotFound
	switch {
	case errors.Is(err, document.ErrNotFound):
		if hide {
			return "Unable to join document"
		}
		return "Document not found"
	case errors.Is(err, access.ErrUnauthorized):
		if hide {
			return "Unable to join document"
		}
		return "Invalid password"
	case errors.Is(err, session.ErrShuttingDown):
		return "Server is shutting down"
	}
	return "Failed to join document"
}

func (c *connection) change(req changeRequest) {
	// frames for a document this connection has not joined are ignored
	if req.DocumentID != c.doc || c.doc == "" {
		return
	}
	if err := c.srv.svc.SubmitChange(context.Background(), c.doc, c.p.ID, req.Content, req.Operation); err != nil {
		logger.Warnf("realtime: change from %s on %s rejected: %v", c.p.ID, c.doc, err)
		if errors.Is(err, session.ErrShuttingDown) {
			c.p.Send(errorEvent("Server is shutting down"))
			return
		}
		c.p.Send(errorEvent("Document is not open"))
	}
}

// compile runs off the read loop so edits keep flowing; the result goes only
// to the requester.
func (c *connection) compile(req documentRequest) {
	docID := req.DocumentID
	logger.Infof("realtime: compile request from %s for %s", c.p.ID, docID)
	c.compiles.Add(1)
	go func() {
		defer c.compiles.Done()
		job, err := c.srv.svc.RequestCompile(context.Background(), docID, c.p.ID)
		switch {
		case err == nil:
			c.p.Send(session.Event{Type: session.EventCompileSuccess, DocumentID: docID, Payload: map[string]any{
				"pdfUrl":  job.ArtifactURL,
				"jobId":   job.ID,
				"message": job.Message,
			}})
		case errors.Is(err, compile.ErrCompilationFailed):
			msg := "Compilation failed"
			if job != nil && job.Message != "" {
				msg = job.Message
			}
			c.p.Send(session.Event{Type: session.EventCompileError, DocumentID: docID, Payload: map[string]any{"message": msg}})
		default:
			c.p.Send(session.Event{Type: session.EventCompileError, DocumentID: docID, Payload: map[string]any{"message": "Document not found"}})
		}
	}()
}

func (c *connection) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.srv.svc.LeaveDocument(ctx, c.doc, c.p.ID); err != nil {
		logger.Warnf("realtime: leave %s by %s: %v", c.doc, c.p.ID, err)
	}
	c.doc = ""
}
