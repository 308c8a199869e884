package verso_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/verso-archive/verso/pkg/verso"
)

func TestResolveObjectFilter(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mk := func(version int64, status verso.VersionStatus, tag string, created time.Time) *verso.ObjectVersion {
		return &verso.ObjectVersion{
			Key:           "k",
			BucketName:    "b",
			VersionNumber: version,
			Status:        status,
			Tag:           tag,
			CreationDate:  created,
			UUID:          uuid.New(),
		}
	}

	v0 := mk(0, verso.StatusUsed, "stable", base)
	v1 := mk(1, verso.StatusDeleted, "stable", base.Add(time.Hour))
	v2 := mk(2, verso.StatusUsed, "stable", base.Add(2*time.Hour))
	v3 := mk(3, verso.StatusUsed, "next", base.Add(3*time.Hour))
	v4 := mk(4, verso.StatusPurged, "", base.Add(4*time.Hour))
	versions := []*verso.ObjectVersion{v0, v1, v2, v3, v4}

	num := func(n int64) *int64 { return &n }

	tests := []struct {
		name   string
		filter verso.Filter
		want   *verso.ObjectVersion
	}{
		{
			name:   "empty filter picks latest used",
			filter: verso.Filter{},
			want:   v3,
		},
		{
			name:   "version matches any status",
			filter: verso.Filter{Version: num(1)},
			want:   v1,
		},
		{
			name:   "version matches purged",
			filter: verso.Filter{Version: num(4)},
			want:   v4,
		},
		{
			name:   "version no match",
			filter: verso.Filter{Version: num(9)},
			want:   nil,
		},
		{
			name:   "uuid matches any status",
			filter: verso.Filter{UUID: &v1.UUID},
			want:   v1,
		},
		{
			name:   "tag picks latest used match only",
			filter: verso.Filter{Tag: "stable"},
			want:   v2,
		},
		{
			name:   "tag with no active match",
			filter: verso.Filter{Tag: "gone"},
			want:   nil,
		},
		{
			name:   "uuid wins over version and tag",
			filter: verso.Filter{UUID: &v0.UUID, Version: num(3), Tag: "next"},
			want:   v0,
		},
		{
			name:   "version wins over tag",
			filter: verso.Filter{Version: num(0), Tag: "next"},
			want:   v0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verso.ResolveObjectFilter(versions, tt.filter)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolveObjectFilterTagTiebreak(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Equal creation dates: the higher version number wins.
	a := &verso.ObjectVersion{VersionNumber: 0, Status: verso.StatusUsed, Tag: "t", CreationDate: base, UUID: uuid.New()}
	b := &verso.ObjectVersion{VersionNumber: 1, Status: verso.StatusUsed, Tag: "t", CreationDate: base, UUID: uuid.New()}

	got := verso.ResolveObjectFilter([]*verso.ObjectVersion{a, b}, verso.Filter{Tag: "t"})
	assert.Equal(t, b, got)
}

func TestResolveCollectionFilter(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	v0 := &verso.CollectionVersion{VersionNumber: 0, Status: verso.StatusUsed, Tag: "stable", CreationDate: base, UUID: uuid.New()}
	v1 := &verso.CollectionVersion{VersionNumber: 1, Status: verso.StatusDeleted, Tag: "stable", CreationDate: base.Add(time.Hour), UUID: uuid.New()}
	v2 := &verso.CollectionVersion{VersionNumber: 2, Status: verso.StatusUsed, Tag: "", CreationDate: base.Add(2 * time.Hour), UUID: uuid.New()}
	versions := []*verso.CollectionVersion{v0, v1, v2}

	t.Run("default latest used", func(t *testing.T) {
		assert.Equal(t, v2, verso.ResolveCollectionFilter(versions, verso.Filter{}))
	})

	t.Run("tag skips deleted", func(t *testing.T) {
		assert.Equal(t, v0, verso.ResolveCollectionFilter(versions, verso.Filter{Tag: "stable"}))
	})

	t.Run("uuid reaches deleted", func(t *testing.T) {
		assert.Equal(t, v1, verso.ResolveCollectionFilter(versions, verso.Filter{UUID: &v1.UUID}))
	})
}
