package types

import (
	"strings"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
)

// ValidatePath enforces the virtual path grammar: absolute, "/"-separated,
// no "." or ".." segments, no empty segments from a doubled slash.
func ValidatePath(path string) error {
	if path == "" || path[0] != '/' {
		return kernelerrors.InvalidArgument("router", "path must be absolute").WithContext("path", path)
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		return kernelerrors.InvalidArgument("router", "path must not end with a trailing slash").WithContext("path", path)
	}
	for i, seg := range strings.Split(path, "/") {
		switch seg {
		case "", "/":
			if seg == "" && i > 0 && path != "/" {
				return kernelerrors.InvalidArgument("router", "path must not contain empty segments").WithContext("path", path)
			}
			continue
		case ".", "..":
			return kernelerrors.InvalidArgument("router", "path must not contain . or .. segments").WithContext("path", path)
		}
	}
	return nil
}

// Parent returns the directory containing path, or "/" for top-level paths.
func Parent(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(strings.TrimSuffix(path, "/"), "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// Base returns the final path segment.
func Base(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[idx+1:]
}

// HasPrefix reports whether path is prefix or a descendant of prefix.
func HasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
