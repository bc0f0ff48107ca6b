package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/memstore"
)

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := store.NewMetrics(reg)
	s := store.Instrument(memstore.New(), m)

	require.NoError(t, s.DeclareType(ctx, store.Class{Name: "Note"}))
	id, err := s.Save(ctx, document.New("Note"))
	require.NoError(t, err)
	_, err = s.Fetch(ctx, id)
	require.NoError(t, err)
	_, err = s.Fetch(ctx, document.NewID())
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Query(ctx, "SELECT FROM Ghost")
	require.ErrorIs(t, err, store.ErrUnknownClass)
	_, err = s.Query(ctx, "garbage")
	require.Error(t, err)

	expected := `
# HELP docbind_store_operations_total Total number of document store operations by outcome
# TYPE docbind_store_operations_total counter
docbind_store_operations_total{op="declare_type",outcome="ok"} 1
docbind_store_operations_total{op="fetch",outcome="not_found"} 1
docbind_store_operations_total{op="fetch",outcome="ok"} 1
docbind_store_operations_total{op="query",outcome="error"} 1
docbind_store_operations_total{op="query",outcome="unknown_class"} 1
docbind_store_operations_total{op="save",outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "docbind_store_operations_total"))
	// one duration series per operation kind
	assert.Equal(t, 4, testutil.CollectAndCount(m.Duration))
}
