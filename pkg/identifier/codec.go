// Package identifier encodes user-supplied dataset ids into filesystem
// -safe filenames, and back. Ids may contain "/" and other characters
// that are not safe as a single path segment; every filename the store
// writes must go through Encode, never direct concatenation.
package identifier

import (
	"net/url"
	"strings"
	"unicode"

	cerrors "github.com/logflow/coursedb/pkg/errors"
)

// Encode percent-escapes id into a single filesystem-safe path segment.
// Encode is total (defined for every legal id, per Validate) and
// bijective: Decode(Encode(id)) == id.
func Encode(id string) string {
	return url.PathEscape(id)
}

// Decode reverses Encode. It returns the original error from the
// percent-decoder verbatim; inputs from ListIds always round-trip
// since they were produced by Encode.
func Decode(fname string) (string, error) {
	return url.PathUnescape(fname)
}

// Validate reports whether id is a legal dataset id: non-empty, not
// all whitespace, and free of underscores (reserved as the dataset-key
// separator, spec.md §3/§4.5).
func Validate(id string) error {
	if id == "" {
		return cerrors.InvalidID(id)
	}
	if strings.Contains(id, "_") {
		return cerrors.InvalidID(id)
	}
	allWhitespace := true
	for _, r := range id {
		if !unicode.IsSpace(r) {
			allWhitespace = false
			break
		}
	}
	if allWhitespace {
		return cerrors.InvalidID(id)
	}
	return nil
}
