package hls

import (
	"context"
	"log/slog"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/errors"
)

// ReadinessProbe watches a work directory until enough output exists
// for the first client response.
//
// Requiring at least two segments avoids a known HLS client stall: a
// single-segment playlist reads as a live stream with no next segment
// and some players freeze around the 3-second mark. The fallback bound
// trades that protection for latency when the transcoder is slow to
// produce a second segment.
type ReadinessProbe struct {
	MinSegments int
	Timeout     time.Duration
	Poll        time.Duration
	Fallback    time.Duration

	logger *slog.Logger
}

// NewReadinessProbe creates a probe with the given tuning.
func NewReadinessProbe(minSegments int, timeout, poll, fallback time.Duration, logger *slog.Logger) *ReadinessProbe {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReadinessProbe{
		MinSegments: minSegments,
		Timeout:     timeout,
		Poll:        poll,
		Fallback:    fallback,
		logger:      logger,
	}
}

// Wait blocks until the work directory is ready to serve, the job dies,
// the timeout elapses, or ctx is cancelled. running reports whether the
// producing job is still alive.
func (p *ReadinessProbe) Wait(ctx context.Context, workDir string, running func() bool) error {
	start := time.Now()
	deadline := start.Add(p.Timeout)

	for {
		info, err := readPlaylist(workDir)
		if err == nil {
			if p.ready(workDir, info, start) {
				return nil
			}
		}

		if !running() {
			// The producer is gone. One final look: partial output is
			// still servable, nothing at all is a hard failure.
			if final, ferr := readPlaylist(workDir); ferr == nil {
				if anySegmentNonEmpty(workDir, final.Segments) {
					return nil
				}
			}
			return errors.TranscoderNoOutput("transcoder exited before producing a segment")
		}

		if time.Now().After(deadline) {
			return errors.ReadinessTimeout("no usable output within readiness timeout")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Poll):
		}
	}
}

// ready evaluates the acceptance conditions against one playlist read.
func (p *ReadinessProbe) ready(workDir string, info playlistInfo, start time.Time) bool {
	n := len(info.Segments)
	if n == 0 {
		return false
	}

	// Enough segments, and the newest one has data on disk.
	if n >= p.MinSegments && segmentNonEmpty(workDir, info.Segments[n-1]) {
		return true
	}

	// A short finished stream is complete at one segment.
	if info.Ended {
		return true
	}

	// Fallback: prefer a short start-up delay over a long one.
	if time.Since(start) >= p.Fallback && segmentNonEmpty(workDir, info.Segments[0]) {
		return true
	}

	return false
}

func anySegmentNonEmpty(workDir string, segments []string) bool {
	for _, seg := range segments {
		if segmentNonEmpty(workDir, seg) {
			return true
		}
	}
	return false
}
