package pomelo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMap_SamePrimaryKeySameRecord(t *testing.T) {
	tp, err := Define("user")
	require.NoError(t, err)

	a, createdA := tp.identity.ensure(tp, "user:1")
	b, createdB := tp.identity.ensure(tp, "user:1")

	assert.True(t, createdA)
	assert.False(t, createdB)
	assert.Same(t, a, b)

	// numeric and stringified keys canonicalize to the same slot
	c, created := tp.identity.ensure(tp, 7)
	d, _ := tp.identity.ensure(tp, float64(7))
	assert.True(t, created)
	assert.Same(t, c, d)
}

func TestIdentityMap_ConcurrentEnsure(t *testing.T) {
	tp, err := Define("user")
	require.NoError(t, err)

	const routines = 64
	records := make([]*Record, routines)

	var wg sync.WaitGroup
	wg.Add(routines)
	for i := 0; i < routines; i++ {
		go func(i int) {
			defer wg.Done()
			records[i], _ = tp.identity.ensure(tp, "user:42")
		}(i)
	}
	wg.Wait()

	for i := 1; i < routines; i++ {
		assert.Same(t, records[0], records[i])
	}
	assert.Equal(t, 1, tp.Count())
}

func TestIdentityMap_NilKeyAlwaysConstructsFresh(t *testing.T) {
	tp, err := Define("user")
	require.NoError(t, err)

	a, _ := tp.identity.ensure(tp, nil)
	b, _ := tp.identity.ensure(tp, nil)

	assert.NotSame(t, a, b)
	assert.Equal(t, 0, tp.Count(), "records without a primary key are not addressable")
}

func TestIdentityMap_InsertionOrderMembership(t *testing.T) {
	tp, err := Define("user")
	require.NoError(t, err)

	for i := 5; i >= 1; i-- {
		tp.identity.ensure(tp, fmt.Sprintf("user:%d", i))
	}

	all := tp.identity.all()
	require.Len(t, all, 5)
	for i, r := range all {
		assert.Equal(t, fmt.Sprintf("user:%d", 5-i), r.ID())
	}

	tp.identity.remove("user:3")
	all = tp.identity.all()
	require.Len(t, all, 4)
	for _, r := range all {
		assert.NotEqual(t, "user:3", r.ID())
	}

	// removing an absent key is a no-op
	tp.identity.remove("user:99")
	assert.Equal(t, 4, tp.Count())

	tp.Clear()
	assert.Equal(t, 0, tp.Count())
	assert.Empty(t, tp.identity.all())
}

func TestIdentityMap_MergePreservesReference(t *testing.T) {
	tp, err := Define("book", Encode("title", "year"))
	require.NoError(t, err)

	first, err := tp.materialize(M{"id": "book:1", "title": "Go", "year": 2015})
	require.NoError(t, err)

	second, err := tp.materialize(M{"id": "book:1", "title": "Still Go", "year": 2021})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "Still Go", first.Get("title"))
	assert.Equal(t, 2021, first.Get("year"))
	assert.Equal(t, 1, tp.Count())
}

func TestIdentityMap_MergePolicies(t *testing.T) {
	t.Run("overwrite discards unsaved local edits", func(t *testing.T) {
		tp, err := Define("book", Encode("title"))
		require.NoError(t, err)

		r, err := tp.materialize(M{"id": "book:1", "title": "Go"})
		require.NoError(t, err)

		r.Set("title", "my local edit")
		require.True(t, r.IsDirty())

		_, err = tp.materialize(M{"id": "book:1", "title": "fresh from storage"})
		require.NoError(t, err)

		assert.Equal(t, "fresh from storage", r.Get("title"))
		assert.False(t, r.IsDirty())
	})

	t.Run("preserveDirty keeps unsaved local edits", func(t *testing.T) {
		tp, err := Define("book", Encode("title", "year"), WithMergePolicy(MergePreserveDirty))
		require.NoError(t, err)

		r, err := tp.materialize(M{"id": "book:1", "title": "Go", "year": 2015})
		require.NoError(t, err)

		r.Set("title", "my local edit")

		_, err = tp.materialize(M{"id": "book:1", "title": "fresh from storage", "year": 2021})
		require.NoError(t, err)

		assert.Equal(t, "my local edit", r.Get("title"))
		assert.Equal(t, 2021, r.Get("year"), "clean keys still take incoming values")
		assert.Equal(t, []string{"title"}, r.DirtyKeys())
	})
}

func TestIdentityMap_AdoptAfterSaveKeepsExistingCanonical(t *testing.T) {
	tp, err := Define("book", Encode("title"))
	require.NoError(t, err)

	canonical, err := tp.materialize(M{"id": "book:1", "title": "Go"})
	require.NoError(t, err)

	stray := tp.New(M{"id": "book:1", "title": "imposter"})
	got := tp.identity.adopt(stray)

	assert.Same(t, canonical, got)
	assert.Equal(t, "imposter", canonical.Get("title"), "newcomer's attributes flow onto the canonical record")
	assert.Equal(t, 1, tp.Count())
}
