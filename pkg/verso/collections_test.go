package verso_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-archive/verso/pkg/verso"
)

func setupCollectionFixture(t *testing.T) verso.Service {
	t.Helper()

	svc := setupTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBucket(ctx, "docs")
	require.NoError(t, err)

	createTestObject(t, svc, "docs", "intro", "intro v0")
	createTestObject(t, svc, "docs", "intro", "intro v1")
	createTestObject(t, svc, "docs", "summary", "summary v0")

	return svc
}

func TestCreateCollection(t *testing.T) {
	svc := setupCollectionFixture(t)
	ctx := context.Background()

	t.Run("MembersResolveToLatestUsed", func(t *testing.T) {
		collection, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "handbook",
			Members: []verso.MemberInput{
				{Key: "intro"},
				{Key: "summary"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), collection.VersionNumber)
		assert.Equal(t, verso.StatusUsed, collection.Status)
		require.Len(t, collection.Members, 2)

		byKey := map[string]verso.CollectionMember{}
		for _, m := range collection.Members {
			byKey[m.ObjectKey] = m
		}
		assert.Equal(t, int64(1), byKey["intro"].VersionNumber)
		assert.Equal(t, int64(0), byKey["summary"].VersionNumber)
	})

	t.Run("MemberPinnedByVersion", func(t *testing.T) {
		zero := int64(0)
		collection, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "archive",
			Members: []verso.MemberInput{
				{Key: "intro", Version: &zero},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), collection.Members[0].VersionNumber)
	})

	t.Run("MemberNotFound", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "broken",
			Members: []verso.MemberInput{
				{Key: "missing"},
			},
		})
		assert.ErrorIs(t, err, verso.ErrMemberNotFound)
	})

	t.Run("MemberInvalidUUID", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "broken",
			Members: []verso.MemberInput{
				{Key: "intro", UUID: "not-a-uuid"},
			},
		})
		assert.ErrorIs(t, err, verso.ErrInvalidUUID)
	})

	t.Run("NewOnExistingKey", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
			Bucket:  "docs",
			Key:     "handbook",
			Members: []verso.MemberInput{{Key: "intro"}},
		})
		assert.ErrorIs(t, err, verso.ErrKeyExists)
	})

	t.Run("VersionOnAbsentKey", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, verso.CreateVersion, verso.CreateCollectionRequest{
			Bucket:  "docs",
			Key:     "missing",
			Members: []verso.MemberInput{{Key: "intro"}},
		})
		assert.ErrorIs(t, err, verso.ErrNoVersionTarget)
	})
}

func TestCollectionDeduplication(t *testing.T) {
	svc := setupCollectionFixture(t)
	ctx := context.Background()

	first, err := svc.CreateCollection(ctx, verso.CreateAuto, verso.CreateCollectionRequest{
		Bucket: "docs",
		Key:    "handbook",
		Tag:    "stable",
		Members: []verso.MemberInput{
			{Key: "intro"},
			{Key: "summary"},
		},
	})
	require.NoError(t, err)

	t.Run("IdenticalFollowUpIsNoOp", func(t *testing.T) {
		// Same tag, same resolved member set: the existing version comes
		// back untouched and no new version is assigned.
		again, err := svc.CreateCollection(ctx, verso.CreateAuto, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "handbook",
			Tag:    "stable",
			Members: []verso.MemberInput{
				{Key: "summary"},
				{Key: "intro"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, first.UUID, again.UUID)
		assert.Equal(t, first.VersionNumber, again.VersionNumber)

		versions, err := svc.ListCollectionVersions(ctx, "docs", "handbook")
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("ChangedTagCreatesVersion", func(t *testing.T) {
		next, err := svc.CreateCollection(ctx, verso.CreateAuto, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "handbook",
			Tag:    "next",
			Members: []verso.MemberInput{
				{Key: "intro"},
				{Key: "summary"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), next.VersionNumber)
	})

	t.Run("ChangedMembersCreateVersion", func(t *testing.T) {
		next, err := svc.CreateCollection(ctx, verso.CreateAuto, verso.CreateCollectionRequest{
			Bucket: "docs",
			Key:    "handbook",
			Tag:    "next",
			Members: []verso.MemberInput{
				{Key: "intro"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), next.VersionNumber)
	})
}

func TestCollectionMemberUnaffectedByObjectDelete(t *testing.T) {
	svc := setupCollectionFixture(t)
	ctx := context.Background()

	collection, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
		Bucket:  "docs",
		Key:     "handbook",
		Members: []verso.MemberInput{{Key: "summary"}},
	})
	require.NoError(t, err)

	// Member references are resolved once; deleting the object afterwards
	// does not invalidate the collection row.
	zero := int64(0)
	_, err = svc.DeleteObject(ctx, "docs", "summary", verso.Filter{Version: &zero}, true)
	require.NoError(t, err)

	got, err := svc.GetCollection(ctx, "docs", "handbook", verso.Filter{})
	require.NoError(t, err)
	assert.Equal(t, collection.UUID, got.UUID)
	require.Len(t, got.Members, 1)
	assert.Equal(t, "summary", got.Members[0].ObjectKey)
}

func TestDeleteCollection(t *testing.T) {
	svc := setupCollectionFixture(t)
	ctx := context.Background()

	_, err := svc.CreateCollection(ctx, verso.CreateNew, verso.CreateCollectionRequest{
		Bucket:  "docs",
		Key:     "handbook",
		Tag:     "stable",
		Members: []verso.MemberInput{{Key: "intro"}},
	})
	require.NoError(t, err)

	t.Run("RequiresFilter", func(t *testing.T) {
		_, err := svc.DeleteCollection(ctx, "docs", "handbook", verso.Filter{})
		assert.ErrorIs(t, err, verso.ErrNoFilter)
	})

	t.Run("TagAmbiguity", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, verso.CreateVersion, verso.CreateCollectionRequest{
			Bucket:  "docs",
			Key:     "handbook",
			Tag:     "stable",
			Members: []verso.MemberInput{{Key: "summary"}},
		})
		require.NoError(t, err)

		_, err = svc.DeleteCollection(ctx, "docs", "handbook", verso.Filter{Tag: "stable"})
		assert.ErrorIs(t, err, verso.ErrAmbiguousTag)
	})

	t.Run("SoftDeleteByVersion", func(t *testing.T) {
		zero := int64(0)
		deleted, err := svc.DeleteCollection(ctx, "docs", "handbook", verso.Filter{Version: &zero})
		require.NoError(t, err)
		assert.Equal(t, verso.StatusDeleted, deleted.Status)
	})

	t.Run("DeleteTwice", func(t *testing.T) {
		zero := int64(0)
		_, err := svc.DeleteCollection(ctx, "docs", "handbook", verso.Filter{Version: &zero})
		assert.ErrorIs(t, err, verso.ErrNotDeletable)
	})

	t.Run("DeletedExcludedFromDefaultRead", func(t *testing.T) {
		got, err := svc.GetCollection(ctx, "docs", "handbook", verso.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.VersionNumber)
	})
}
