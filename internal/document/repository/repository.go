package repository

import (
	"context"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
)

// Store is the durable document/version persistence used by the session engine.
// Implementations return document.ErrNotFound / document.ErrVersionNotFound for
// unknown ids.
type Store interface {
	CreateDocument(ctx context.Context, d *document.Document) error
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	UpdateContent(ctx context.Context, id, content string) error
	UpdateCredential(ctx context.Context, id, credentialHash string) error

	AppendVersion(ctx context.Context, v *document.Version) (string, error)
	// ListVersions returns the newest versions first.
	ListVersions(ctx context.Context, documentID string, limit int) ([]*document.Version, error)
	GetVersion(ctx context.Context, versionID string) (*document.Version, error)
	// PruneVersions deletes all but the newest keep versions and returns the number removed.
	PruneVersions(ctx context.Context, documentID string, keep int) (int64, error)
}
