// Package natsclient wraps the NATS Go client with a circuit breaker,
// structured logging and KV helpers for blockflow.
//
// blockflow uses NATS for three things: the NATS device transport sends
// block commands as request/reply, the program store keeps serialized
// programs in a KV bucket, and run logs are published on
// blockflow.logs.<program>.
//
// # Circuit Breaker
//
// Every failed Connect or bucket operation counts toward a threshold
// (default 5). Once reached, the circuit opens and Connect fails fast with
// ErrCircuitOpen. After the current backoff the circuit half-opens and the
// next Connect is let through. Each opening doubles the backoff, starting
// at one second and capped by WithMaxBackoff. A success resets everything.
//
// # Connection Lifecycle
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connected
//	                                   \-> CircuitOpen after repeated failures
//
// Reconnects are handled by nats.go itself. The client only tracks state,
// logs transitions and calls the WithHealthChangeCallback function.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	reply, err := client.Request(ctx, "blockflow.device.motor", payload)
//
// Request applies the client timeout when ctx has no deadline. A request
// nobody answers fails with a transient error wrapping errors.ErrNoConnection.
//
// # KV Store
//
// KVStore adds revision-checked writes on top of a jetstream.KeyValue:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket:  "blockflow_programs",
//	    History: 10,
//	})
//	kv := client.NewKVStore(bucket)
//
//	rev, err := kv.Create(ctx, "p1", data)         // ErrKVKeyExists if present
//	_, err = kv.Update(ctx, "p1", next, rev)        // ErrKVRevisionMismatch if stale
//	err = kv.UpdateWithRetry(ctx, "p1", func(cur []byte) ([]byte, error) {
//	    return mutate(cur)
//	})
//
// UpdateWithRetry retries revision conflicts with jittered backoff from
// pkg/retry. Errors returned by the update function end the loop at once
// and are returned unchanged.
//
// # Metrics
//
// WithMetrics reports through the registry's core metrics:
//
//	blockflow_nats_connected            1 while connected
//	blockflow_nats_reconnects_total     reconnects performed by nats.go
//	blockflow_nats_circuit_breaker      1 while the circuit is open
//
// # Testing
//
// NewTestClient starts a nats container through testcontainers-go with
// JetStream enabled and terminates it on test cleanup. Tests that need it
// carry the integration build tag:
//
//	go test -tags integration ./natsclient/...
package natsclient
