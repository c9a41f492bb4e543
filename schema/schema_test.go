package schema_test

import (
	"testing"
	"time"

	"github.com/denismitr/pomelo"
	"github.com/denismitr/pomelo/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postDoc = `
name: post
primaryKey: id
storageName: posts
keys:
  - name: title
    validate:
      - presence: true
      - maxLength: 64
  - name: body
  - name: views
    encode: false
    validate:
      - numeric: true
  - name: draft
    decode: false
`

func TestParse(t *testing.T) {
	m, err := schema.Parse([]byte(postDoc))
	require.NoError(t, err)

	assert.Equal(t, "post", m.Name)
	assert.Equal(t, "id", m.PrimaryKey)
	assert.Equal(t, "posts", m.StorageName)
	require.Len(t, m.Keys, 4)
	assert.Len(t, m.Keys[0].Validate, 2)
}

func TestParse_Failures(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		_, err := schema.Parse([]byte(`primaryKey: id`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, schema.ErrInvalidSchema))
	})

	t.Run("misspelled rule is rejected", func(t *testing.T) {
		doc := `
name: post
keys:
  - name: title
    validate:
      - presense: true
`
		_, err := schema.Parse([]byte(doc))
		require.Error(t, err)
		assert.True(t, errors.Is(err, schema.ErrInvalidSchema))
	})

	t.Run("not yaml at all", func(t *testing.T) {
		_, err := schema.Parse([]byte(`{{`))
		require.Error(t, err)
	})
}

func TestOptions_Failures(t *testing.T) {
	t.Run("empty rule", func(t *testing.T) {
		m, err := schema.Parse([]byte("name: post\nkeys:\n  - name: title\n    validate:\n      - {}\n"))
		require.NoError(t, err)

		_, oerr := m.Options()
		require.Error(t, oerr)
		assert.True(t, errors.Is(oerr, schema.ErrInvalidSchema))
	})

	t.Run("lengthWithin arity", func(t *testing.T) {
		m, err := schema.Parse([]byte("name: post\nkeys:\n  - name: title\n    validate:\n      - lengthWithin: [1]\n"))
		require.NoError(t, err)

		_, oerr := m.Options()
		require.Error(t, oerr)
		assert.True(t, errors.Is(oerr, schema.ErrInvalidSchema))
	})

	t.Run("both directions suppressed", func(t *testing.T) {
		m, err := schema.Parse([]byte("name: post\nkeys:\n  - name: title\n    encode: false\n    decode: false\n"))
		require.NoError(t, err)

		_, oerr := m.Options()
		require.Error(t, oerr)
		assert.True(t, errors.Is(oerr, schema.ErrInvalidSchema))
	})
}

func TestDefine_EndToEnd(t *testing.T) {
	tp, err := schema.Define([]byte(postDoc))
	require.NoError(t, err)

	assert.Equal(t, "post", tp.Name())
	assert.Equal(t, "posts", tp.StorageName())
	assert.Equal(t, "id", tp.PrimaryKey())

	// declared suppressions hold
	rec := tp.New(nil)
	require.NoError(t, rec.FromJSON(pomelo.M{
		"id":    1,
		"title": "hello",
		"body":  "world",
		"views": 12,
		"draft": true,
	}))
	assert.Equal(t, 12, rec.Get("views"))
	assert.Nil(t, rec.Get("draft"), "decode suppressed keys are not accepted")

	out, err := rec.ToJSON()
	require.NoError(t, err)
	_, transmitted := out["views"]
	assert.False(t, transmitted, "encode suppressed keys are not transmitted")

	// declared validations hold
	invalid := tp.New(pomelo.M{"views": "many"})
	done := make(chan struct{})
	require.NoError(t, invalid.Validate(func(err error, _ *pomelo.Record) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("validation callback never fired")
	}

	assert.NotEmpty(t, invalid.Errors().On("title"))
	assert.NotEmpty(t, invalid.Errors().On("views"))
}
