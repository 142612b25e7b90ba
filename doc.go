// The [quill] package implements the client-side consistency layer of a
// document store: it serializes every read, write and listen operation a
// client issues, multiplexes concurrent listeners onto shared
// subscriptions, and keeps each observer's view of documents and queries
// causally ordered and monotonically progressing.
//
// # Operation queue
//
// Every public operation becomes a task on the client's single operation
// queue. Tasks run strictly in submission order and never concurrently with
// each other, which is what makes the guarantees cheap: a write submitted
// before a read is applied to the local cache before the read runs, so a
// client always observes its own writes, with no locking inside the cache or
// the listener registry.
//
// # Writes
//
// [Client.SetDoc], [Client.UpdateDoc], [Client.DeleteDoc] and
// [Client.AddDoc] all funnel into one write path: the mutations are applied
// to the local cache optimistically, forwarded to the commit channel in
// submission order, and the caller's result settles only when the backend
// acknowledges the commit. A write has no cancellation; once accepted it
// runs to completion.
//
// # Listeners
//
// [Client.ListenDoc], [Client.ListenQuery] and [Client.OnSnapshotsInSync]
// register callbacks. Identical targets share one underlying subscription.
// Unsubscribing mutes the listener synchronously, so no callback fires after
// the unsubscribe call returns even if a delivery was already scheduled.
//
// # Engines
//
// The cache/sync engine, the commit channel and the listener transport are
// collaborators behind interfaces; see [Engine] and [CommitChannel]. By
// default a client runs on the embedded in-memory engine, which is also the
// backend the package's own tests run against. The
// [github.com/quilldb/quill.go/pkg/remote] package provides a
// WebSocket-backed commit channel.
package quill
