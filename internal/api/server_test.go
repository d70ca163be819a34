package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/hls"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/search"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

// testServer wires a full server over temp directories. The transcoder
// binary does not exist; handler tests exercise everything up to and
// around the spawn path.
type testServer struct {
	server  *Server
	store   *store.Store
	scanner *library.Scanner
	cache   *hls.CacheStore
	music   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	s, err := store.New(filepath.Join(t.TempDir(), "index"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	searchIndex, err := search.NewIndex(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = searchIndex.Close() })

	music := t.TempDir()
	scanner := library.NewScanner(s, searchIndex, music, logger)
	libraryService := library.NewService(s)

	cache, err := hls.NewCacheStore(t.TempDir(), 100, time.Hour, logger, hls.NopMetrics())
	require.NoError(t, err)

	runner := hls.NewRunner(filepath.Join(t.TempDir(), "missing-transcoder"), time.Minute, logger)
	registry := hls.NewRegistry(runner, 4, logger, hls.NopMetrics())
	t.Cleanup(registry.CancelAll)

	probe := hls.NewReadinessProbe(2, 2*time.Second, 10*time.Millisecond, 500*time.Millisecond, logger)
	streamer := hls.NewStreamer(libraryService, cache, registry, probe, true, "/rest/hls", logger, hls.NopMetrics())

	server := NewServer(streamer, libraryService, scanner, searchIndex, prometheus.NewRegistry(), "", logger)
	t.Cleanup(server.Close)

	return &testServer{
		server:  server,
		store:   s,
		scanner: scanner,
		cache:   cache,
		music:   music,
	}
}

func (ts *testServer) addTrack(t *testing.T, rel string) {
	t.Helper()
	path := filepath.Join(ts.music, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	_, err := ts.scanner.Scan(context.Background())
	require.NoError(t, err)
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaylist_MissingID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/rest/hls.m3u8")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaylist_BadBitrate(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/rest/hls.m3u8?id=%2Fa.flac&bitRate=fast")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaylist_UnknownItem(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/rest/hls.m3u8?id="+url.QueryEscape("/nope.flac"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSegment_MissingKey(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/rest/hls")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSegment_PathEscapeForbidden(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/rest/hls?key="+url.QueryEscape("../../etc/passwd"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSegment_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/rest/hls?key="+url.QueryEscape("/a.flac/128_default/segment_000.ts"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSegment_ServesCachedFile(t *testing.T) {
	ts := newTestServer(t)

	dir := ts.cache.WorkDirFor("/a.flac/128_default")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_000.ts"), []byte("tsdata"), 0o644))

	rec := ts.get(t, "/rest/hls?key="+url.QueryEscape("/a.flac/128_default/segment_000.ts"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/MP2T", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tsdata", rec.Body.String())
}

func TestBrowse(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "Artist/Album/01.flac")

	rec := ts.get(t, "/rest/browse?path="+url.QueryEscape("/Artist/Album"))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data []browseEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "/Artist/Album/01.flac", env.Data[0].ID)
	assert.False(t, env.Data[0].IsDir)
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "Kraftwerk/Autobahn.flac")

	rec := ts.get(t, "/rest/search?q=autobahn")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/Kraftwerk/Autobahn.flac")

	rec = ts.get(t, "/rest/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "one.flac")

	req := httptest.NewRequest(http.MethodPost, "/rest/scan", nil)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"indexed"`)
}

func TestPlaylistCacheHeaders(t *testing.T) {
	ts := newTestServer(t)

	// Pre-seed a complete cached stream so the handler answers without
	// a transcoder.
	key := "/a.flac/128_default"
	dir := ts.cache.WorkDirFor(key)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	playlist := "#EXTM3U\n#EXTINF:3.0,\nsegment_000.ts\n#EXT-X-ENDLIST\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, hls.PlaylistName), []byte(playlist), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_000.ts"), []byte("x"), 0o644))
	ts.cache.Put(key, dir)

	rec := ts.get(t, "/rest/hls.m3u8?id="+url.QueryEscape("/a.flac")+"&bitRate=128")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Contains(t, rec.Body.String(), "/rest/hls?key=%2Fa.flac%2F128_default%2Fsegment_000.ts")
}
