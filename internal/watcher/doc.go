// Package watcher keeps a project's index in sync with its working
// tree. It has two cooperating halves:
//
// FSWatcher watches one directory tree (fsnotify when available,
// polling otherwise), filters events at receipt (eligible extensions
// only, ignore rules and .gitignore applied, renames split into
// delete+create), and emits coalesced batches.
//
// ProjectScheduler turns those batches into reindex decisions: each
// event bumps the owning project's last-event time, and a project is
// queued for reindex once it has been quiescent for the debounce
// window. Projects sharing a directory share one FSWatcher; the
// scheduler fans a directory's events out to every project registered
// against it.
package watcher
