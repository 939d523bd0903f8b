package repository

import (
	"context"
	"testing"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockRepo(mt *mtest.T) *MongoRepo {
	return &MongoRepo{
		docs:     mt.DB.Collection("documents"),
		versions: mt.DB.Collection("document_versions"),
		counters: mt.DB.Collection("version_counters"),
	}
}

func TestMongoAppendVersionUsesCounterNotClock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	mt.Run("same timestamp", func(mt *mtest.T) {
		repo := mockRepo(mt)
		at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "_id", Value: "doc-1"}, {Key: "seq", Value: int64(7)}}}),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "_id", Value: "doc-1"}, {Key: "seq", Value: int64(8)}}}),
			mtest.CreateSuccessResponse(),
		)

		first := &document.Version{DocumentID: "doc-1", Content: "a", CreatedAt: at}
		second := &document.Version{DocumentID: "doc-1", Content: "b", CreatedAt: at}
		_, err := repo.AppendVersion(context.Background(), first)
		require.NoError(mt, err)
		_, err = repo.AppendVersion(context.Background(), second)
		require.NoError(mt, err)

		assert.Equal(mt, int64(7), first.Seq)
		assert.Equal(mt, int64(8), second.Seq)
		assert.NotEqual(mt, first.ID, second.ID)
	})
}

func TestMongoPruneDeletesOnlyBeyondKeep(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	mt.Run("older versions", func(mt *mtest.T) {
		repo := mockRepo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "gogotex.document_versions", mtest.FirstBatch,
				bson.D{{Key: "id", Value: "v1"}},
				bson.D{{Key: "id", Value: "v2"}},
			),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(2)}),
		)

		n, err := repo.PruneVersions(context.Background(), "doc-1", 3)
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), n)

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.Equal(mt, "find", find.CommandName)
		skip, ok := find.Command.Lookup("skip").AsInt64OK()
		require.True(mt, ok)
		assert.Equal(mt, int64(3), skip)
		del := mt.GetStartedEvent()
		require.NotNil(mt, del)
		assert.Equal(mt, "delete", del.CommandName)
	})

	mt.Run("nothing to prune", func(mt *mtest.T) {
		repo := mockRepo(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "gogotex.document_versions", mtest.FirstBatch))

		n, err := repo.PruneVersions(context.Background(), "doc-1", 3)
		require.NoError(mt, err)
		assert.Zero(mt, n)
	})
}
