// Package access decides whether a participant may open a document session
// and guards changes to a document's credential.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnauthorized = errors.New("invalid credential")

// DocumentStore is the subset of the durable store the gate needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	UpdateCredential(ctx context.Context, id, credentialHash string) error
}

// Revoker is notified after a credential change so previously issued join
// tickets stop working.
type Revoker interface {
	RevokeDocument(ctx context.Context, documentID string) error
}

type Gate struct {
	store   DocumentStore
	cost    int
	revoker Revoker
}

// NewGate returns a gate hashing with the given bcrypt cost (bcrypt.DefaultCost when out of range).
func NewGate(store DocumentStore, cost int, revoker Revoker) *Gate {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Gate{store: store, cost: cost, revoker: revoker}
}

// HashCredential hashes a plain credential; empty input yields an empty hash (unprotected).
func (g *Gate) HashCredential(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), g.cost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(b), nil
}

// Authorize loads the document and checks the supplied credential against its
// stored hash. Unknown documents yield document.ErrNotFound, mismatches ErrUnauthorized.
func (g *Gate) Authorize(ctx context.Context, documentID, credential string) (*document.Document, error) {
	d, err := g.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !d.Protected() {
		return d, nil
	}
	if credential == "" {
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(d.CredentialHash), []byte(credential)); err != nil {
		logger.Debugf("access: credential mismatch for document %s", documentID)
		return nil, ErrUnauthorized
	}
	return d, nil
}

// ChangeCredential replaces the document credential. The current credential is
// required unless the document is unprotected; an empty next removes protection.
func (g *Gate) ChangeCredential(ctx context.Context, documentID, current, next string) error {
	if _, err := g.Authorize(ctx, documentID, current); err != nil {
		return err
	}
	hash, err := g.HashCredential(next)
	if err != nil {
		return err
	}
	if err := g.store.UpdateCredential(ctx, documentID, hash); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if g.revoker != nil {
		if err := g.revoker.RevokeDocument(ctx, documentID); err != nil {
			logger.Warnf("access: revoking join tickets for %s failed: %v", documentID, err)
		}
	}
	logger.Infof("access: credential changed for document %s (protected=%v)", documentID, hash != "")
	return nil
}
