package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Store on "documents" keyed by the string field "id"
// and "document_versions" ordered by a per-document sequence drawn from
// "version_counters".
type MongoRepo struct {
	docs     *mongo.Collection
	versions *mongo.Collection
	counters *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	docs := db.Collection("documents")
	versions := db.Collection("document_versions")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// ensure an index on "id" for fast lookups (id is expected unique)
	_, _ = docs.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)})
	_, _ = versions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "seq", Value: -1}}},
	})
	return &MongoRepo{docs: docs, versions: versions, counters: db.Collection("version_counters")}
}

func (m *MongoRepo) CreateDocument(ctx context.Context, d *document.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := m.docs.InsertOne(ctx, d)
	return err
}

func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.docs.FindOne(ctx, bson.M{"id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) UpdateContent(ctx context.Context, id, content string) error {
	return m.set(ctx, id, bson.M{"content": content})
}

func (m *MongoRepo) UpdateCredential(ctx context.Context, id, credentialHash string) error {
	return m.set(ctx, id, bson.M{"credentialHash": credentialHash})
}

func (m *MongoRepo) set(ctx context.Context, id string, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := m.docs.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) AppendVersion(ctx context.Context, v *document.Version) (string, error) {
	seq, err := m.nextSeq(ctx, v.DocumentID)
	if err != nil {
		return "", fmt.Errorf("version sequence: %w", err)
	}
	v.ID = uuid.NewString()
	v.Seq = seq
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if _, err := m.versions.InsertOne(ctx, v); err != nil {
		return "", err
	}
	return v.ID, nil
}

// nextSeq atomically increments the document's counter, so versions stay
// strictly ordered even when their timestamps collide.
func (m *MongoRepo) nextSeq(ctx context.Context, documentID string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var c struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx, bson.M{"_id": documentID}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&c)
	return c.Seq, err
}

func (m *MongoRepo) ListVersions(ctx context.Context, documentID string, limit int) ([]*document.Version, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.versions.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Version{}
	for cur.Next(ctx) {
		var v document.Version
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}

func (m *MongoRepo) GetVersion(ctx context.Context, versionID string) (*document.Version, error) {
	var v document.Version
	if err := m.versions.FindOne(ctx, bson.M{"id": versionID}).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrVersionNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (m *MongoRepo) PruneVersions(ctx context.Context, documentID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	// everything past the newest keep versions, by id
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetSkip(int64(keep)).
		SetProjection(bson.M{"id": 1})
	cur, err := m.versions.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&row); err != nil {
			return 0, err
		}
		ids = append(ids, row.ID)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := m.versions.DeleteMany(ctx, bson.M{"documentId": documentID, "id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
