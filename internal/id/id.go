// Package id mints the server's prefixed identifiers. Two kinds exist
// today: transcoder job handles ("job-…") and scan runs ("scan-…"),
// both appearing primarily in log lines, so IDs stay short and
// copy-paste friendly.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate returns "<prefix>-<nanoid>", e.g. "job-V1StGXR8_Z5jdHi6B-myT".
// The 21-character URL-safe NanoID body keeps IDs grep-able in logs
// without UUID bulk. Fails only when the system entropy source does.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is Generate for call sites that cannot propagate an
// error (job registration, scan startup); entropy exhaustion panics.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
