package kernel

import (
	"bytes"
	"context"
	"path"
	"regexp"
	"strings"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// ListOptions configures a List call.
type ListOptions struct {
	Recursive bool
	QueryID   string
}

// List implements §4.7's list(path, recursive?, details?, show_parsed?):
// permission check on the directory, page through the metadata store
// under the prefix, and record a directory-prefix read-set entry so any
// write under path invalidates this query.
func (k *Kernel) List(ctx context.Context, subject types.Subject, dir types.VirtualPath, opts ListOptions) ([]types.DirEntry, error) {
	if err := types.ValidatePath(string(dir)); err != nil {
		return nil, err
	}
	if _, err := k.resolveZone(dir, subject); err != nil {
		return nil, err
	}
	if err := k.checkPermission(ctx, subject, "read", dir); err != nil {
		return nil, err
	}

	entries, err := k.listPrefix(ctx, dir, opts.Recursive)
	if err != nil {
		return nil, err
	}

	if opts.QueryID != "" {
		_ = k.readset.Register(ctx, types.ReadSetEntry{
			QueryID:           opts.QueryID,
			DirectoryPrefixes: []string{string(dir)},
			Zones:             []string{subject.Zone},
		})
	}

	return entries, nil
}

// listPrefix collects direct children of dir, or every descendant when
// recursive is set, translating FileMetadata into the DirEntry shape
// list() returns to callers.
func (k *Kernel) listPrefix(ctx context.Context, dir types.VirtualPath, recursive bool) ([]types.DirEntry, error) {
	var out []types.DirEntry
	cursor := ""
	for {
		page, next, err := k.meta.List(ctx, dir, cursor, 1000)
		if err != nil {
			return nil, err
		}
		for _, meta := range page {
			rel := strings.TrimPrefix(string(meta.Path), string(dir))
			rel = strings.TrimPrefix(rel, "/")
			if !recursive && strings.Contains(rel, "/") {
				continue
			}
			name := rel
			if recursive {
				name = string(meta.Path)
			}
			out = append(out, types.DirEntry{Name: name, IsDir: meta.IsDir, Size: meta.Size, Mode: meta.Mode})
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// GlobOptions configures a Glob call.
type GlobOptions struct {
	QueryID string
}

// Glob implements §4.7's glob(pattern, path): list every descendant of
// path and keep those whose name matches pattern via the POSIX shell
// pattern grammar path.Match already implements (no glob library appears
// anywhere in the example pack worth reaching for over the standard
// library's own implementation - see DESIGN.md).
func (k *Kernel) Glob(ctx context.Context, subject types.Subject, dir types.VirtualPath, pattern string, opts GlobOptions) ([]types.DirEntry, error) {
	entries, err := k.List(ctx, subject, dir, ListOptions{Recursive: true, QueryID: opts.QueryID})
	if err != nil {
		return nil, err
	}

	var matched []types.DirEntry
	for _, e := range entries {
		base := path.Base(e.Name)
		ok, err := path.Match(pattern, base)
		if err != nil {
			return nil, kernelerrors.InvalidArgument("kernel", "malformed glob pattern").WithContext("pattern", pattern)
		}
		if ok {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// GrepOptions configures a Grep call.
type GrepOptions struct {
	FilePattern string
	IgnoreCase  bool
	MaxResults  int
	QueryID     string
}

// GrepMatch is a single line matched by Grep.
type GrepMatch struct {
	Path types.VirtualPath
	Line int
	Text string
}

// Grep implements §4.7's grep(pattern, path, file_pattern?, ignore_case?,
// max_results?, search_mode?): list descendants, filter by file_pattern,
// read each candidate's content, and scan it line by line with a compiled
// regexp (no third-party search/grep library appears in the example pack
// for content scanning - see DESIGN.md).
func (k *Kernel) Grep(ctx context.Context, subject types.Subject, dir types.VirtualPath, pattern string, opts GrepOptions) ([]GrepMatch, error) {
	expr := pattern
	if opts.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, kernelerrors.InvalidArgument("kernel", "malformed grep pattern").WithContext("pattern", pattern)
	}

	entries, err := k.List(ctx, subject, dir, ListOptions{Recursive: true, QueryID: opts.QueryID})
	if err != nil {
		return nil, err
	}

	var matches []GrepMatch
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if opts.FilePattern != "" {
			if ok, _ := path.Match(opts.FilePattern, path.Base(e.Name)); !ok {
				continue
			}
		}

		fullPath := e.Name
		if !strings.HasPrefix(fullPath, "/") {
			fullPath = string(dir) + "/" + fullPath
		}

		data, _, err := k.Read(ctx, subject, types.VirtualPath(fullPath), ReadOptions{})
		if err != nil {
			continue
		}

		for i, line := range bytes.Split(data, []byte("\n")) {
			if re.Match(line) {
				matches = append(matches, GrepMatch{Path: types.VirtualPath(fullPath), Line: i + 1, Text: string(line)})
				if opts.MaxResults > 0 && len(matches) >= opts.MaxResults {
					return matches, nil
				}
			}
		}
	}
	return matches, nil
}
