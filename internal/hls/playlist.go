package hls

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PlaylistName is the playlist file the transcoder writes into each work directory.
	PlaylistName = "playlist.m3u8"

	playlistMagic = "#EXTM3U"
	endListMarker = "#EXT-X-ENDLIST"

	// segmentPrefix is the fixed stem of transcoder segment files (segment_000.ts, ...).
	segmentPrefix = "segment_"
)

// playlistInfo is the parsed view of an on-disk playlist.
type playlistInfo struct {
	Segments []string // referenced .ts file names, in playlist order
	HasMagic bool
	Ended    bool
}

// parsePlaylist extracts segment references and stream markers from playlist text.
func parsePlaylist(text string) playlistInfo {
	var info playlistInfo
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, playlistMagic) && !info.HasMagic:
			info.HasMagic = true
		case line == endListMarker:
			info.Ended = true
		case !strings.HasPrefix(line, "#") && strings.HasSuffix(line, ".ts"):
			info.Segments = append(info.Segments, line)
		}
	}
	return info
}

// readPlaylist reads and parses the playlist inside a work directory.
func readPlaylist(workDir string) (playlistInfo, error) {
	data, err := os.ReadFile(filepath.Join(workDir, PlaylistName))
	if err != nil {
		return playlistInfo{}, err
	}
	return parsePlaylist(string(data)), nil
}

// segmentNonEmpty reports whether a referenced segment exists in the
// work directory with non-zero size.
func segmentNonEmpty(workDir, name string) bool {
	info, err := os.Stat(filepath.Join(workDir, name))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// playlistComplete reports whether the work directory holds a finished
// stream: playlist magic, the stream-end marker, and every referenced
// segment present with non-zero size. Used by the cache to self-heal
// after crashes - a partial directory fails this check and is evicted.
func playlistComplete(workDir string) bool {
	info, err := readPlaylist(workDir)
	if err != nil {
		return false
	}
	if !info.HasMagic || !info.Ended || len(info.Segments) == 0 {
		return false
	}
	for _, seg := range info.Segments {
		if !segmentNonEmpty(workDir, seg) {
			return false
		}
	}
	return true
}

// escapeKey percent-encodes a cache key for use in a query parameter.
// RFC 3986 form: spaces become %20, not "+", so identifiers containing
// '#', '?', '+' and spaces round-trip through the key parameter unchanged.
func escapeKey(key string) string {
	return strings.ReplaceAll(url.QueryEscape(key), "+", "%20")
}

// RewriteSegmentURLs maps the bare segment file names in playlist text
// onto the server's segment route. Every literal "segment_" becomes
//
//	<basePath>?key=<escaped cacheKey + "/">segment_
//
// The rewrite is in-memory only: the on-disk playlist keeps bare names
// so the same cached stream can be served under any path base.
func RewriteSegmentURLs(text, basePath, cacheKey string) string {
	replacement := basePath + "?key=" + escapeKey(cacheKey+"/") + segmentPrefix
	return strings.ReplaceAll(text, segmentPrefix, replacement)
}
