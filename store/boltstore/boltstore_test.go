package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/boltstore"
	"github.com/reoring/docbind/store/storetest"
)

func open(t *testing.T, path string) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(path, boltstore.WithTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltstore(t *testing.T) {
	suite.Run(t, &storetest.Suite{New: func(t *testing.T) store.Store {
		return open(t, filepath.Join(t.TempDir(), "db"))
	}})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	s, err := boltstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.DeclareType(ctx, store.Class{Name: "Note", Fields: []store.Property{{Name: "text", Shape: "primitive"}}}))
	id, err := s.Save(ctx, document.New("Note").Set("text", "kept"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = open(t, path)
	classes, err := s.Classes(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Note", classes[0].Name)

	doc, err := s.Fetch(ctx, id)
	require.NoError(t, err)
	text, _ := doc.Get("text")
	assert.Equal(t, "kept", text)
}

func TestSave_MovesBetweenClasses(t *testing.T) {
	ctx := context.Background()
	s := open(t, filepath.Join(t.TempDir(), "db"))
	require.NoError(t, s.DeclareType(ctx, store.Class{Name: "Draft"}))
	require.NoError(t, s.DeclareType(ctx, store.Class{Name: "Post"}))

	id, err := s.Save(ctx, document.New("Draft").Set("n", 1))
	require.NoError(t, err)
	moved := document.New("Post").Set("n", 2)
	moved.ID = id
	_, err = s.Save(ctx, moved)
	require.NoError(t, err)

	drafts, err := s.Query(ctx, "SELECT FROM Draft")
	require.NoError(t, err)
	assert.Empty(t, drafts)

	doc, err := s.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Post", doc.Name)
}

func TestCanceledContext(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "db"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, document.NewID())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.DeclareType(ctx, store.Class{Name: "X"}), context.Canceled)
}
