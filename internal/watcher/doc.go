// Package watcher reports changes to a single file, such as the config
// file, so long-running commands can reload it.
//
// fsnotify is used when available, watching the parent directory so that
// editors that replace the file by rename are seen. When fsnotify cannot
// be initialized the watcher falls back to polling the file's mtime.
// Bursts of events are coalesced by a Debouncer before the callback runs.
package watcher
