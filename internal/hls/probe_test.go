package hls

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/errors"
)

func newTestProbe() *ReadinessProbe {
	return NewReadinessProbe(2, 500*time.Millisecond, 10*time.Millisecond, 100*time.Millisecond, nil)
}

func alwaysRunning() bool { return true }
func neverRunning() bool  { return false }

func TestProbe_ReadyWithMinSegments(t *testing.T) {
	dir := t.TempDir()
	writeStream(t, dir, "#EXTM3U\nsegment_000.ts\nsegment_001.ts\n", map[string][]byte{
		"segment_000.ts": []byte("data"),
		"segment_001.ts": []byte("data"),
	})

	err := newTestProbe().Wait(context.Background(), dir, alwaysRunning)
	assert.NoError(t, err)
}

func TestProbe_NotReadyWhenLastSegmentEmpty(t *testing.T) {
	dir := t.TempDir()
	// Two references but the newest file has no bytes yet; the probe
	// must hold until the fallback window instead of serving a torn tail.
	writeStream(t, dir, "#EXTM3U\nsegment_000.ts\nsegment_001.ts\n", map[string][]byte{
		"segment_000.ts": []byte("data"),
		"segment_001.ts": {},
	})

	start := time.Now()
	err := newTestProbe().Wait(context.Background(), dir, alwaysRunning)
	require.NoError(t, err)
	// Accepted by the single-segment fallback, not the fast path.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestProbe_ShortFinishedStream(t *testing.T) {
	// One segment shorter than the target plus the end marker: complete.
	dir := t.TempDir()
	writeStream(t, dir, "#EXTM3U\nsegment_000.ts\n#EXT-X-ENDLIST\n", map[string][]byte{
		"segment_000.ts": []byte("data"),
	})

	start := time.Now()
	err := newTestProbe().Wait(context.Background(), dir, alwaysRunning)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestProbe_FallbackAcceptsSingleSegment(t *testing.T) {
	dir := t.TempDir()
	writeStream(t, dir, "#EXTM3U\nsegment_000.ts\n", map[string][]byte{
		"segment_000.ts": []byte("data"),
	})

	start := time.Now()
	err := newTestProbe().Wait(context.Background(), dir, alwaysRunning)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestProbe_SegmentAppearsMidWait(t *testing.T) {
	dir := t.TempDir()
	writeStream(t, dir, "#EXTM3U\nsegment_000.ts\n", map[string][]byte{
		"segment_000.ts": []byte("data"),
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		playlist := "#EXTM3U\nsegment_000.ts\nsegment_001.ts\n"
		_ = os.WriteFile(filepath.Join(dir, "segment_001.ts"), []byte("data"), 0o644)
		_ = os.WriteFile(filepath.Join(dir, PlaylistName), []byte(playlist), 0o644)
	}()

	err := newTestProbe().Wait(context.Background(), dir, alwaysRunning)
	assert.NoError(t, err)
}

func TestProbe_DeadJobWithPartialOutput(t *testing.T) {
	dir := t.TempDir()
	writeStream(t, dir, "#EXTM3U\nsegment_000.ts\n", map[string][]byte{
		"segment_000.ts": []byte("data"),
	})

	// Partial output from a dead producer is still servable.
	err := newTestProbe().Wait(context.Background(), dir, neverRunning)
	assert.NoError(t, err)
}

func TestProbe_DeadJobWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	writeStream(t, dir, "#EXTM3U\n", nil)

	err := newTestProbe().Wait(context.Background(), dir, neverRunning)
	assert.True(t, errors.Is(err, errors.ErrTranscoderNoOutput))
}

func TestProbe_DeadJobNoPlaylist(t *testing.T) {
	err := newTestProbe().Wait(context.Background(), t.TempDir(), neverRunning)
	assert.True(t, errors.Is(err, errors.ErrTranscoderNoOutput))
}

func TestProbe_Timeout(t *testing.T) {
	err := newTestProbe().Wait(context.Background(), t.TempDir(), alwaysRunning)
	assert.True(t, errors.Is(err, errors.ErrReadinessTimeout))
}

func TestProbe_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := newTestProbe().Wait(ctx, t.TempDir(), alwaysRunning)
	assert.ErrorIs(t, err, context.Canceled)
}
