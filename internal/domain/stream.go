package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Variant identifies one transcode of a library item: a bitrate plus an
// opaque audio-track tag. The zero bitrate means "codec default".
type Variant struct {
	BitrateKbps int
	AudioTrack  string
}

// Key renders the variant's canonical on-disk form: "<bitrate>_<track>",
// with "default" standing in for unset fields (e.g. "128_default").
func (v Variant) Key() string {
	bitrate := "default"
	if v.BitrateKbps > 0 {
		bitrate = strconv.Itoa(v.BitrateKbps)
	}
	track := v.AudioTrack
	if track == "" {
		track = "default"
	}
	return bitrate + "_" + track
}

// String implements fmt.Stringer.
func (v Variant) String() string { return v.Key() }

// CacheKey is the canonical identity of one transcoded stream:
// "<itemID>/<variantKey>". It doubles as the work directory's subpath
// under the cache root, so item IDs containing slashes nest naturally.
func CacheKey(itemID string, v Variant) string {
	return itemID + "/" + v.Key()
}

// JobStatus represents the state of a transcoder process.
type JobStatus string

const (
	JobStatusSpawning  JobStatus = "spawning"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// JobResult captures the outcome of one transcoder process.
type JobResult struct {
	Status     JobStatus
	ExitCode   int
	StderrTail string
	StartedAt  time.Time
	EndedAt    time.Time
}

// String implements fmt.Stringer.
func (r JobResult) String() string {
	return fmt.Sprintf("%s (exit %d)", r.Status, r.ExitCode)
}
