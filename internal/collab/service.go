// Package collab exposes the operations the API and realtime layers call:
// document creation, joining, editing, credential changes, compilation and
// version history.
package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/access"
	"github.com/gogotex/gogotex/backend/collab/internal/compile"
	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab/internal/session"
	"github.com/gogotex/gogotex/backend/collab/internal/tickets"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
)

const (
	DefaultTitle        = "Untitled"
	DefaultVersionLimit = 20
	MaxVersionLimit     = 100
)

// Info is the public view of a document: no content, no credential.
type Info struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Protected    bool      `json:"protected"`
	Live         bool      `json:"live"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Service struct {
	store    repository.Store
	gate     *access.Gate
	tickets  *tickets.Issuer
	registry *session.Registry
	compiler *compile.Orchestrator
}

func NewService(store repository.Store, gate *access.Gate, issuer *tickets.Issuer, registry *session.Registry, compiler *compile.Orchestrator) *Service {
	return &Service{store: store, gate: gate, tickets: issuer, registry: registry, compiler: compiler}
}

// CreateDocument stores a new empty document, protected when password is set.
func (s *Service) CreateDocument(ctx context.Context, title, password string) (*document.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	hash, err := s.gate.HashCredential(password)
	if err != nil {
		return nil, err
	}
	d := &document.Document{Title: title, CredentialHash: hash}
	if err := s.store.CreateDocument(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	logger.Infof("collab: created document %s (protected=%v)", d.ID, d.Protected())
	return d, nil
}

// DocumentInfo returns metadata and live presence for a document.
func (s *Service) DocumentInfo(ctx context.Context, id string) (*Info, error) {
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &Info{
		ID:        d.ID,
		Title:     d.Title,
		Protected: d.Protected(),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if snap, ok := s.registry.Snapshot(id); ok {
		info.Live = true
		info.Participants = len(snap.Participants)
	}
	return info, nil
}

// JoinDocument checks the credential and attaches p to the live session.
func (s *Service) JoinDocument(ctx context.Context, id, credential string, p *session.Participant) (session.Snapshot, error) {
	if _, err := s.gate.Authorize(ctx, id, credential); err != nil {
		return session.Snapshot{}, err
	}
	return s.registry.Join(ctx, id, p)
}

// JoinWithTicket attaches p using a ticket from IssueTicket instead of the
// password. A bad ticket is reported as access.ErrUnauthorized.
func (s *Service) JoinWithTicket(ctx context.Context, id, ticket string, p *session.Participant) (session.Snapshot, error) {
	if err := s.VerifyTicket(ctx, id, ticket); err != nil {
		return session.Snapshot{}, err
	}
	return s.registry.Join(ctx, id, p)
}

// IssueTicket authorizes once with the credential and returns a short-lived
// join ticket for the document.
func (s *Service) IssueTicket(ctx context.Context, id, credential string) (string, time.Duration, error) {
	if _, err := s.gate.Authorize(ctx, id, credential); err != nil {
		return "", 0, err
	}
	return s.tickets.Issue(id)
}

// VerifyTicket checks a join ticket for the document.
func (s *Service) VerifyTicket(ctx context.Context, id, ticket string) error {
	if _, err := s.tickets.Verify(ctx, ticket, id); err != nil {
		if errors.Is(err, tickets.ErrInvalidTicket) {
			return fmt.Errorf("%w: %v", access.ErrUnauthorized, err)
		}
		return err
	}
	return nil
}

// RequireAccess allows reads of a document's history: unprotected documents
// are open, protected ones need a valid ticket.
func (s *Service) RequireAccess(ctx context.Context, id, ticket string) error {
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if !d.Protected() {
		return nil
	}
	if ticket == "" {
		return access.ErrUnauthorized
	}
	return s.VerifyTicket(ctx, id, ticket)
}

func (s *Service) LeaveDocument(ctx context.Context, id, participantID string) error {
	return s.registry.Leave(ctx, id, participantID)
}

func (s *Service) ChangeCredential(ctx context.Context, id, current, next string) error {
	return s.gate.ChangeCredential(ctx, id, current, next)
}

// SubmitChange replaces the live content. The operation label travels to peers
// and marks pastes and applied suggestions for version capture.
func (s *Service) SubmitChange(ctx context.Context, id, participantID, content, operation string) error {
	return s.registry.Replace(ctx, id, participantID, session.Change{
		Content:      content,
		Operation:    operation,
		Significance: significanceOf(operation),
	})
}

func significanceOf(operation string) session.Significance {
	switch strings.ToLower(operation) {
	case "paste":
		return session.SignificancePaste
	case "suggestion", "apply-suggestion", "ai-suggestion":
		return session.SignificanceSuggestion
	}
	return session.SignificanceNormal
}

// RequestCompile compiles the participant's live document.
func (s *Service) RequestCompile(ctx context.Context, id, participantID string) (*compile.Job, error) {
	return s.compiler.Compile(ctx, compile.Request{DocumentID: id, ParticipantID: participantID})
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*compile.Job, error) {
	return s.compiler.Job(ctx, jobID)
}

// ListVersions returns the newest versions first, without their content.
func (s *Service) ListVersions(ctx context.Context, id string, limit int) ([]*document.Version, error) {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultVersionLimit
	}
	if limit > MaxVersionLimit {
		limit = MaxVersionLimit
	}
	vs, err := s.store.ListVersions(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		v.Content = ""
	}
	return vs, nil
}

func (s *Service) GetVersion(ctx context.Context, versionID string) (*document.Version, error) {
	return s.store.GetVersion(ctx, versionID)
}

// Shutdown flushes every live session within ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.registry.Shutdown(ctx)
}
