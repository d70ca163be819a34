package hls

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/library"
)

// segmentDuration is the HLS segment target in seconds.
const segmentDuration = 3

// Streamer is the facade of the streaming core: it resolves items,
// coordinates the cache, registry, and probe, and produces client-ready
// playlist text and segment paths.
type Streamer struct {
	index        library.Index
	cache        *CacheStore
	registry     *Registry
	probe        *ReadinessProbe
	cacheEnabled bool

	// basePath is the root-relative segment route the rewritten
	// playlist points at (e.g. "/rest/hls"). Scheme-less and host-less
	// so proxies cannot break it.
	basePath string

	logger  *slog.Logger
	metrics *Metrics
}

// NewStreamer wires the streaming core together.
func NewStreamer(
	index library.Index,
	cache *CacheStore,
	registry *Registry,
	probe *ReadinessProbe,
	cacheEnabled bool,
	basePath string,
	logger *slog.Logger,
	metrics *Metrics,
) *Streamer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Streamer{
		index:        index,
		cache:        cache,
		registry:     registry,
		probe:        probe,
		cacheEnabled: cacheEnabled,
		basePath:     basePath,
		logger:       logger,
		metrics:      metrics,
	}
}

// GeneratePlaylist returns rewritten playlist text for one item+variant,
// spawning or reusing a transcoder as needed and blocking until the
// stream is ready for a first response.
func (s *Streamer) GeneratePlaylist(ctx context.Context, itemID string, variant domain.Variant) (string, error) {
	key := domain.CacheKey(itemID, variant)
	workDir := s.cache.WorkDirFor(key)

	if s.cacheEnabled {
		if entry := s.cache.Get(key); entry != nil {
			return s.renderPlaylist(entry.WorkDir, key)
		}
	}

	src, err := s.index.Lookup(ctx, itemID)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "library lookup")
	}
	if src == nil {
		return "", errors.ItemNotFoundf("library item %q not found", itemID)
	}
	if _, err := os.Stat(src.AbsolutePath); err != nil {
		return "", errors.SourceMissingf("source file for %q missing on disk", itemID)
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create work directory")
	}

	argv := buildTranscodeArgs(src, variant, workDir)
	job := s.registry.EnsureRunning(itemID, variant, workDir, argv, func(result domain.JobResult) {
		s.onJobExit(key, workDir, result)
	})

	if err := s.probe.Wait(ctx, workDir, job.Running); err != nil {
		if errors.Is(err, errors.ErrReadinessTimeout) {
			job.Cancel()
		}
		s.cache.Remove(key)
		return "", err
	}

	text, err := s.renderPlaylist(workDir, key)
	if err != nil {
		return "", err
	}

	if s.cacheEnabled {
		s.cache.Put(key, workDir)
	}
	return text, nil
}

// onJobExit runs once per spawned job. A clean exit re-registers the
// entry so the next Get's completeness check can promote it; failures
// leave the entry pending and a later request retries from scratch.
func (s *Streamer) onJobExit(key, workDir string, result domain.JobResult) {
	if !s.cacheEnabled {
		return
	}
	if result.Status == domain.JobStatusCompleted {
		s.cache.Put(key, workDir)
		return
	}
	s.logger.Warn("transcode ended without completing stream",
		slog.String("key", key),
		slog.String("status", string(result.Status)),
		slog.String("stderr_tail", result.StderrTail),
	)
}

// renderPlaylist reads the on-disk playlist and rewrites its segment
// references for the client. The file itself is never modified.
func (s *Streamer) renderPlaylist(workDir, key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(workDir, PlaylistName))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "read playlist")
	}
	return RewriteSegmentURLs(string(data), s.basePath, key), nil
}

// ServeSegment maps a client-supplied key (a path under the cache root)
// to an absolute file path and MIME type. Keys that canonicalize
// outside the cache root are refused.
func (s *Streamer) ServeSegment(key string) (path, mimeType string, err error) {
	root := s.cache.Root()
	candidate := filepath.Clean(filepath.Join(root, filepath.FromSlash(key)))

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", errors.PathEscape("segment key escapes cache root")
	}

	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", "", errors.SegmentNotFound("no such segment")
	}

	return candidate, segmentMIMEType(candidate), nil
}

// segmentMIMEType maps a served file to its content type.
func segmentMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return "video/MP2T"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	default:
		return "application/octet-stream"
	}
}

// buildTranscodeArgs constructs the transcoder argv: audio-only AAC
// HLS into workDir. Cue tracks pre-seek before the input and bound the
// duration after it.
func buildTranscodeArgs(src *domain.MediaSource, variant domain.Variant, workDir string) []string {
	args := []string{"-v", "error", "-y"}

	if src.IsCueTrack {
		args = append(args, "-ss", formatSeconds(src.CueStart.Seconds()))
	}

	args = append(args, "-i", src.AbsolutePath)

	if src.IsCueTrack && src.CueDuration > 0 {
		args = append(args, "-t", formatSeconds(src.CueDuration.Seconds()))
	}

	args = append(args, "-vn", "-c:a", "aac")

	if variant.BitrateKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", variant.BitrateKbps))
	}

	// The audio-track tag is passed through as a stream selector when
	// it is a plain index; anything else rides only in the variant key.
	if _, err := strconv.Atoi(variant.AudioTrack); err == nil && variant.AudioTrack != "" {
		args = append(args, "-map", "0:a:"+variant.AudioTrack)
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentDuration),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(workDir, segmentPrefix+"%03d.ts"),
		"-start_number", "0",
		filepath.Join(workDir, PlaylistName),
	)
	return args
}

// formatSeconds renders a seek/duration value for the transcoder.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
