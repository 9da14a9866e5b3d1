package docstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoc_BuildsNestedRef(t *testing.T) {
	ref := Doc("posts", "p1", "likes", "u1")
	assert.Equal(t, "posts/p1/likes", ref.Collection)
	assert.Equal(t, "u1", ref.ID)
	assert.Equal(t, "posts/p1/likes/u1", ref.Path())
	assert.NoError(t, ref.Validate())
}

func TestRef_ValidateRejectsCollectionPaths(t *testing.T) {
	assert.Error(t, Ref{Collection: "posts/p1", ID: "x"}.Validate())
	assert.Error(t, Ref{Collection: "posts", ID: ""}.Validate())
	assert.Error(t, Ref{Collection: "posts", ID: "a/b"}.Validate())
}

func TestParsePath(t *testing.T) {
	ref, err := ParsePath("posts/p1/likes/u1")
	require.NoError(t, err)
	assert.Equal(t, Doc("posts", "p1", "likes", "u1"), ref)

	_, err = ParsePath("posts")
	assert.Error(t, err)
}

func TestQuery_ValidateRangeNeedsOrder(t *testing.T) {
	assert.Error(t, Query{Collection: "users", StartAt: "a"}.Validate())
	assert.NoError(t, Query{Collection: "users", OrderBy: "handleLower", StartAt: "a"}.Validate())
}

func TestCompare_TimestampsChronological(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC).Format(time.RFC3339Nano)
	b := time.Date(2024, 1, 1, 0, 0, 1, 500_000_000, time.UTC).Format(time.RFC3339Nano)
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, -1, Compare(1.0, "a"))
	assert.Equal(t, 0, Compare(2.0, 2.0))
}

func TestNormalize_RejectsNonObjects(t *testing.T) {
	_, err := Normalize([]string{"x"})
	assert.Error(t, err)

	m, err := Normalize(struct {
		A int `json:"a"`
	}{A: 2})
	require.NoError(t, err)
	assert.Equal(t, float64(2), m["a"])
}

func TestHub_RequeriesOnNotify(t *testing.T) {
	h := NewHub()
	var runs atomic.Int32
	run := func(ctx context.Context, q Query) ([]*Snapshot, error) {
		runs.Add(1)
		return nil, nil
	}

	emissions := make(chan QuerySnapshot, 8)
	sub := h.Watch(context.Background(), Query{Collection: "posts"}, run, func(qs QuerySnapshot) {
		emissions <- qs
	})
	<-emissions

	h.Notify("users")
	h.Notify("posts")
	<-emissions

	sub.Stop()
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, 0, h.Len())
}

func TestHub_ErrorIsTerminal(t *testing.T) {
	h := NewHub()
	boom := errors.New("boom")
	run := func(ctx context.Context, q Query) ([]*Snapshot, error) {
		return nil, boom
	}

	emissions := make(chan QuerySnapshot, 8)
	sub := h.Watch(context.Background(), Query{Collection: "posts"}, run, func(qs QuerySnapshot) {
		emissions <- qs
	})

	qs := <-emissions
	assert.ErrorIs(t, qs.Err, boom)

	require.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, time.Millisecond)
	sub.Stop()
	assert.Empty(t, emissions)
}
