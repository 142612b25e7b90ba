package models

import (
	"fmt"
	"strings"

	"github.com/quilldb/quill.go/pkg/constants"
)

// SplitFieldPath splits a dotted field path like "a.b.c" into its segments.
// Empty paths and empty segments are invalid.
func SplitFieldPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty field path", constants.ErrInvalidUpdate)
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: field path %q contains an empty segment", constants.ErrInvalidUpdate, path)
		}
	}
	return segments, nil
}

// LookupField resolves a dotted field path against a decoded field map.
func LookupField(fields map[string]any, path string) (any, bool) {
	segments, err := SplitFieldPath(path)
	if err != nil {
		return nil, false
	}

	var cur any = fields
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setField writes value at the dotted path, creating intermediate maps.
// A non-map value on the way is overwritten, matching last-writer-wins
// semantics for patches.
func setField(fields map[string]any, segments []string, value any) {
	for len(segments) > 1 {
		next, ok := fields[segments[0]].(map[string]any)
		if !ok {
			next = map[string]any{}
			fields[segments[0]] = next
		}
		fields = next
		segments = segments[1:]
	}
	fields[segments[0]] = value
}
