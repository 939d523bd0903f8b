package compile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Status of a compile job. Success and Failure are terminal.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCompiling Status = "compiling"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
)

func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailure }

var ErrJobNotFound = errors.New("compile job not found")

// Job is the record of one compile request.
type Job struct {
	ID            string    `bson:"jobId" json:"jobId"`
	DocumentID    string    `bson:"docId" json:"documentId"`
	ParticipantID string    `bson:"participantId" json:"-"`
	Status        Status    `bson:"status" json:"status"`
	Strategy      string    `bson:"strategy,omitempty" json:"strategy,omitempty"`
	ArtifactURL   string    `bson:"artifactUrl,omitempty" json:"pdfUrl,omitempty"`
	Message       string    `bson:"message,omitempty" json:"message,omitempty"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// JobStore keeps compile job metadata for status lookups.
type JobStore interface {
	Save(ctx context.Context, j *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
}

// MemoryJobStore keeps the most recent jobs in process memory.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	limit int
}

// NewMemoryJobStore keeps at most limit jobs (oldest dropped first).
func NewMemoryJobStore(limit int) *MemoryJobStore {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryJobStore{jobs: make(map[string]*Job), limit: limit}
}

func (m *MemoryJobStore) Save(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	if _, ok := m.jobs[j.ID]; !ok {
		m.order = append(m.order, j.ID)
		if len(m.order) > m.limit {
			delete(m.jobs, m.order[0])
			m.order = m.order[1:]
		}
	}
	m.jobs[j.ID] = &cp
	return nil
}

func (m *MemoryJobStore) Get(_ context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// MongoJobStore persists jobs in the compile_jobs collection.
type MongoJobStore struct {
	col *mongo.Collection
}

func NewMongoJobStore(db *mongo.Database) *MongoJobStore {
	col := db.Collection("compile_jobs")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "jobId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &MongoJobStore{col: col}
}

// Save upserts job metadata keyed by jobId.
func (m *MongoJobStore) Save(ctx context.Context, j *Job) error {
	filter := bson.M{"jobId": j.ID}
	opts := options.Update().SetUpsert(true)
	if _, err := m.col.UpdateOne(ctx, filter, bson.M{"$set": j}, opts); err != nil {
		return fmt.Errorf("save compile job: %w", err)
	}
	return nil
}

func (m *MongoJobStore) Get(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := m.col.FindOne(ctx, bson.M{"jobId": jobID}).Decode(&j); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}
