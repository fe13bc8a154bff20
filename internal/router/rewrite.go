package router

import (
	"errors"
	"strings"
)

// ErrNotPrefix reports a Rewrite call whose prefix precondition does not
// hold. The matcher guarantees the precondition on the request path, so
// seeing this error means a caller bypassed the table.
var ErrNotPrefix = errors.New("prefix does not match path")

// Rewrite replaces the leading occurrence of prefix in path with replacement.
// It is pure and deterministic, applies the substitution exactly once at the
// start of the path, and never returns an empty path.
func Rewrite(path, prefix, replacement string) (string, error) {
	if !strings.HasPrefix(path, prefix) {
		return "", ErrNotPrefix
	}

	rewritten := replacement + path[len(prefix):]
	if rewritten == "" {
		return "/", nil
	}
	if !strings.HasPrefix(rewritten, "/") {
		rewritten = "/" + rewritten
	}
	return rewritten, nil
}
