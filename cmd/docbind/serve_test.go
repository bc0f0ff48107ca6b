package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/memstore"
)

func TestRouter_InstrumentsStoreCalls(t *testing.T) {
	st := memstore.New()
	require.NoError(t, st.DeclareType(context.Background(), store.Class{Name: "Note"}))
	srv := httptest.NewServer(newRouter(st, prometheus.NewRegistry(), slog.New(slog.DiscardHandler)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/documents", "application/json", strings.NewReader(`{"@name":"Note","text":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docbind_store_operations_total{op="save",outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, http.NotFoundHandler(), slog.New(slog.DiscardHandler))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
