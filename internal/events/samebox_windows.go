//go:build windows

package events

// On Windows, fsnotify's ReadDirectoryChangesW backend can report a
// rename as a single event with both old and new names, unlike the
// inotify backend's unpaired Remove+Create pair this package's
// handleFsEvent assumes. That richer event isn't exposed through
// fsnotify's public API, so same-box file_rename detection on Windows is
// best-effort: a rename still surfaces as a delete followed by a create,
// exactly as it does on Linux/macOS. Callers that need an exact rename
// notification on Windows should route through the distributed track, or
// have the kernel façade call Publish directly with a file_rename event
// once it has already performed the rename (the façade always knows when
// an operation is a rename; the filesystem watcher does not).
