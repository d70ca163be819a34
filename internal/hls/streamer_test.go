package hls

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/errors"
)

// fakeIndex is an in-memory library.Index.
type fakeIndex struct {
	items map[string]*domain.MediaSource
}

func (f *fakeIndex) Lookup(_ context.Context, itemID string) (*domain.MediaSource, error) {
	return f.items[itemID], nil
}

// transcoderStub writes a shell script that emulates the transcoder:
// it writes the finished playlist to the last argv element (the playlist
// path), puts two segments in that file's directory, and records each
// invocation.
func transcoderStub(t *testing.T, countFile string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-stub transcoder tests require a POSIX shell")
	}

	script := `#!/bin/sh
for a in "$@"; do last="$a"; done
dir=$(dirname "$last")
printf run >> "` + countFile + `"
printf x > "$dir/segment_000.ts"
printf x > "$dir/segment_001.ts"
{
  echo "#EXTM3U"
  echo "#EXT-X-VERSION:3"
  echo "#EXTINF:3.0,"
  echo "segment_000.ts"
  echo "#EXTINF:3.0,"
  echo "segment_001.ts"
  echo "#EXT-X-ENDLIST"
} > "$last"
exit 0
`
	path := filepath.Join(t.TempDir(), "transcoder-stub")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// spawnCount reads how many times the stub ran.
func spawnCount(t *testing.T, countFile string) int {
	t.Helper()
	data, err := os.ReadFile(countFile)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(data) / len("run")
}

type streamerFixture struct {
	streamer  *Streamer
	registry  *Registry
	cache     *CacheStore
	index     *fakeIndex
	countFile string
	sourceDir string
}

func newStreamerFixture(t *testing.T, cacheEnabled bool) *streamerFixture {
	t.Helper()

	countFile := filepath.Join(t.TempDir(), "spawns")
	stub := transcoderStub(t, countFile)

	cache, err := NewCacheStore(t.TempDir(), 100, time.Hour, nil, NopMetrics())
	require.NoError(t, err)

	runner := NewRunner(stub, time.Minute, nil)
	registry := NewRegistry(runner, 4, nil, NopMetrics())
	t.Cleanup(registry.CancelAll)

	probe := NewReadinessProbe(2, 5*time.Second, 10*time.Millisecond, 2*time.Second, nil)

	sourceDir := t.TempDir()
	index := &fakeIndex{items: map[string]*domain.MediaSource{}}

	streamer := NewStreamer(index, cache, registry, probe, cacheEnabled, "/rest/hls", nil, NopMetrics())

	return &streamerFixture{
		streamer:  streamer,
		registry:  registry,
		cache:     cache,
		index:     index,
		countFile: countFile,
		sourceDir: sourceDir,
	}
}

// addSource registers an item backed by a real temp file.
func (f *streamerFixture) addSource(t *testing.T, itemID string) {
	t.Helper()
	name := filepath.Join(f.sourceDir, strings.ReplaceAll(strings.TrimPrefix(itemID, "/"), "/", "_"))
	require.NoError(t, os.WriteFile(name, []byte("audio"), 0o644))
	f.index.items[itemID] = &domain.MediaSource{AbsolutePath: name}
}

func TestStreamer_GeneratePlaylist(t *testing.T) {
	f := newStreamerFixture(t, true)
	f.addSource(t, "/a/b.flac")

	playlist, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", domain.Variant{BitrateKbps: 128})
	require.NoError(t, err)

	assert.Contains(t, playlist, "/rest/hls?key=%2Fa%2Fb.flac%2F128_default%2Fsegment_000.ts")
	assert.Contains(t, playlist, "/rest/hls?key=%2Fa%2Fb.flac%2F128_default%2Fsegment_001.ts")
	assert.Contains(t, playlist, "#EXT-X-ENDLIST")
	assert.Equal(t, 1, spawnCount(t, f.countFile))
}

func TestStreamer_SecondRequestServedFromCache(t *testing.T) {
	f := newStreamerFixture(t, true)
	f.addSource(t, "/a/b.flac")
	variant := domain.Variant{BitrateKbps: 128}

	first, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", variant)
	require.NoError(t, err)

	// Wait for the stub to exit and the completion re-put to land.
	require.Eventually(t, func() bool {
		return f.registry.Active() == 0
	}, 5*time.Second, 10*time.Millisecond)

	second, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", variant)
	require.NoError(t, err)

	assert.Equal(t, first, second, "cached playlist must be byte-identical")
	assert.Equal(t, 1, spawnCount(t, f.countFile), "cache hit must not respawn")

	entry := f.cache.Get(domain.CacheKey("/a/b.flac", variant))
	require.NotNil(t, entry)
	assert.True(t, entry.Complete)
}

func TestStreamer_ServeSegmentRoundTrip(t *testing.T) {
	f := newStreamerFixture(t, true)
	f.addSource(t, "/a/b.flac")

	playlist, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", domain.Variant{BitrateKbps: 128})
	require.NoError(t, err)

	// Pull the first segment URL out of the rewritten playlist and
	// serve it the way a client would.
	var segmentLine string
	for _, line := range strings.Split(playlist, "\n") {
		if strings.HasPrefix(line, "/rest/hls?") {
			segmentLine = line
			break
		}
	}
	require.NotEmpty(t, segmentLine)

	parsed, err := url.Parse(segmentLine)
	require.NoError(t, err)
	key := parsed.Query().Get("key")

	path, mimeType, err := f.streamer.ServeSegment(key)
	require.NoError(t, err)
	assert.Equal(t, "video/MP2T", mimeType)
	assert.True(t, strings.HasPrefix(path, f.cache.Root()))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStreamer_SpecialCharacterIdentifierRoundTrip(t *testing.T) {
	f := newStreamerFixture(t, true)
	itemID := "/mix tapes/#1 best of+more.flac"
	f.addSource(t, itemID)

	playlist, err := f.streamer.GeneratePlaylist(context.Background(), itemID, domain.Variant{BitrateKbps: 192})
	require.NoError(t, err)

	var segmentLine string
	for _, line := range strings.Split(playlist, "\n") {
		if strings.HasPrefix(line, "/rest/hls?") {
			segmentLine = line
			break
		}
	}
	require.NotEmpty(t, segmentLine)

	parsed, err := url.Parse(segmentLine)
	require.NoError(t, err)
	key := parsed.Query().Get("key")
	assert.Equal(t, itemID+"/192_default/segment_000.ts", key)

	_, mimeType, err := f.streamer.ServeSegment(key)
	require.NoError(t, err)
	assert.Equal(t, "video/MP2T", mimeType)
}

func TestStreamer_ItemNotFound(t *testing.T) {
	f := newStreamerFixture(t, true)

	_, err := f.streamer.GeneratePlaylist(context.Background(), "/nope.flac", domain.Variant{})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStreamer_SourceMissing(t *testing.T) {
	f := newStreamerFixture(t, true)
	f.index.items["/ghost.flac"] = &domain.MediaSource{
		AbsolutePath: filepath.Join(f.sourceDir, "deleted-out-of-band.flac"),
	}

	_, err := f.streamer.GeneratePlaylist(context.Background(), "/ghost.flac", domain.Variant{})
	assert.True(t, errors.Is(err, errors.ErrSourceMissing))
}

func TestStreamer_ServeSegmentPathEscape(t *testing.T) {
	f := newStreamerFixture(t, true)

	for _, key := range []string{
		"../../etc/passwd",
		"/a/../../etc/passwd",
		"..",
	} {
		_, _, err := f.streamer.ServeSegment(key)
		assert.True(t, errors.Is(err, errors.ErrPathEscape), "key %q must be refused", key)
	}
}

func TestStreamer_ServeSegmentMissing(t *testing.T) {
	f := newStreamerFixture(t, true)

	_, _, err := f.streamer.ServeSegment("/a/b.flac/128_default/segment_042.ts")
	assert.True(t, errors.Is(err, errors.ErrSegmentNotFound))
}

func TestStreamer_WorkDirDeletedOutOfBand(t *testing.T) {
	f := newStreamerFixture(t, true)
	f.addSource(t, "/a/b.flac")
	variant := domain.Variant{BitrateKbps: 128}

	_, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", variant)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.registry.Active() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// Nuke the work directory behind the cache's back.
	key := domain.CacheKey("/a/b.flac", variant)
	require.NoError(t, os.RemoveAll(f.cache.WorkDirFor(key)))

	// The next request heals: absent entry, fresh transcode.
	playlist, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", variant)
	require.NoError(t, err)
	assert.Contains(t, playlist, "segment_000.ts")
	assert.Equal(t, 2, spawnCount(t, f.countFile))
}

func TestStreamer_CacheDisabled(t *testing.T) {
	f := newStreamerFixture(t, false)
	f.addSource(t, "/a/b.flac")
	variant := domain.Variant{BitrateKbps: 128}

	_, err := f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", variant)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.registry.Active() == 0
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.streamer.GeneratePlaylist(context.Background(), "/a/b.flac", variant)
	require.NoError(t, err)

	assert.Equal(t, 2, spawnCount(t, f.countFile), "disabled cache must respawn per request")
	assert.Zero(t, f.cache.Len(), "disabled cache must not register entries")
}

func TestBuildTranscodeArgs(t *testing.T) {
	workDir := "/cache/a.flac/128_default"
	src := &domain.MediaSource{AbsolutePath: "/music/a.flac"}

	args := buildTranscodeArgs(src, domain.Variant{BitrateKbps: 128}, workDir)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /music/a.flac")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-b:a 128k")
	assert.Contains(t, joined, "-hls_time 3")
	assert.Contains(t, joined, "-hls_list_size 0")
	assert.Contains(t, joined, "-start_number 0")
	assert.Contains(t, joined, filepath.Join(workDir, "segment_%03d.ts"))
	assert.Contains(t, joined, filepath.Join(workDir, PlaylistName))
	assert.NotContains(t, joined, "-ss")
	assert.NotContains(t, joined, "-map")
}

func TestBuildTranscodeArgs_CueTrack(t *testing.T) {
	src := &domain.MediaSource{
		AbsolutePath: "/music/album.flac",
		IsCueTrack:   true,
		CueStart:     90500 * time.Millisecond,
		CueDuration:  183 * time.Second,
	}

	args := buildTranscodeArgs(src, domain.Variant{BitrateKbps: 192}, "/cache/w")

	// Pre-input seek: -ss must precede -i.
	ssIdx := indexOf(args, "-ss")
	inIdx := indexOf(args, "-i")
	require.GreaterOrEqual(t, ssIdx, 0)
	require.Greater(t, inIdx, ssIdx)
	assert.Equal(t, "90.500", args[ssIdx+1])

	tIdx := indexOf(args, "-t")
	require.Greater(t, tIdx, inIdx)
	assert.Equal(t, "183.000", args[tIdx+1])
}

func TestBuildTranscodeArgs_DefaultBitrate(t *testing.T) {
	src := &domain.MediaSource{AbsolutePath: "/music/a.flac"}
	args := buildTranscodeArgs(src, domain.Variant{}, "/cache/w")

	assert.Equal(t, -1, indexOf(args, "-b:a"), "zero bitrate means codec default")
}

func TestBuildTranscodeArgs_AudioTrackSelector(t *testing.T) {
	src := &domain.MediaSource{AbsolutePath: "/music/a.mka"}

	args := buildTranscodeArgs(src, domain.Variant{BitrateKbps: 128, AudioTrack: "2"}, "/cache/w")
	mapIdx := indexOf(args, "-map")
	require.GreaterOrEqual(t, mapIdx, 0)
	assert.Equal(t, "0:a:2", args[mapIdx+1])

	// Non-numeric tags ride only in the variant key.
	args = buildTranscodeArgs(src, domain.Variant{BitrateKbps: 128, AudioTrack: "commentary"}, "/cache/w")
	assert.Equal(t, -1, indexOf(args, "-map"))
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}
