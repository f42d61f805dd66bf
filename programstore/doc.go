// Package programstore persists blockflow programs in a NATS JetStream
// key-value bucket.
//
// Each program is stored as a Document under its ID in the
// blockflow_programs bucket. The document carries the serialized program
// (see program.Marshal) plus name, description, a version counter and
// timestamps. The bucket keeps ten revisions per key, exposed through
// History.
//
// Updates use optimistic concurrency: the caller passes the document it
// read, and Update fails with ErrVersionConflict if someone else saved in
// between. Revision conflicts at the KV level are retried internally.
//
//	store, err := programstore.NewStore(ctx, natsClient)
//	doc, err := programstore.NewDocument("line-follower", "Line follower", prog)
//	err = store.Create(ctx, doc)
//
//	doc, err = store.Get(ctx, "line-follower")
//	prog, err := doc.Load()
//	// edit prog ...
//	doc.Program, err = program.Marshal(prog)
//	err = store.Update(ctx, doc)
package programstore
