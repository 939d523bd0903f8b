package document

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionNotFound = errors.New("version not found")
)

// Document is the durable record of a shared LaTeX document. Content is the
// last-known-good text; the live copy lives in the session registry while
// participants are attached. An empty CredentialHash means unprotected.
type Document struct {
	ID             string    `json:"id" bson:"id"`
	Title          string    `json:"title" bson:"title"`
	Content        string    `json:"content,omitempty" bson:"content"`
	CredentialHash string    `json:"-" bson:"credentialHash,omitempty"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Protected reports whether joining requires a credential.
func (d *Document) Protected() bool { return d.CredentialHash != "" }

// Version is an append-only content snapshot.
type Version struct {
	ID          string    `json:"id" bson:"id"`
	DocumentID  string    `json:"documentId" bson:"documentId"`
	Content     string    `json:"content,omitempty" bson:"content"`
	Description string    `json:"description" bson:"description"`
	Participant string    `json:"participant" bson:"participant"`
	Seq         int64     `json:"seq" bson:"seq"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}
