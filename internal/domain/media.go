package domain

import "time"

// MediaSource is the library index's resolution of an item ID: the
// physical file to transcode, and for cue tracks the slice of it.
type MediaSource struct {
	// AbsolutePath is the physical audio file on disk.
	AbsolutePath string `json:"absolute_path"`

	// IsCueTrack marks a virtual track that is a time slice of AbsolutePath.
	IsCueTrack bool `json:"is_cue_track,omitempty"`

	// CueStart is the slice offset from the start of the file.
	CueStart time.Duration `json:"cue_start,omitempty"`

	// CueDuration is the slice length; zero means "to end of file".
	CueDuration time.Duration `json:"cue_duration,omitempty"`
}

// Item is one entry of the library index.
type Item struct {
	// ID is the opaque, path-like library identifier (e.g. "/Artist/Album/01.flac").
	ID string `json:"id"`

	// Title is a display name derived from the file name.
	Title string `json:"title"`

	// IsDir marks a browsable container rather than a playable file.
	IsDir bool `json:"is_dir"`

	// Source is set for playable items only.
	Source *MediaSource `json:"source,omitempty"`

	// IndexedAt records when the scanner last touched this entry.
	IndexedAt time.Time `json:"indexed_at"`
}

// Playable reports whether the item can be streamed.
func (i *Item) Playable() bool {
	return !i.IsDir && i.Source != nil
}
