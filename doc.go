// Package blockflow is the core of a visual block-programming environment
// for small robots: programs are graphs of blocks joined through typed
// ports, and they are run by a control-flow interpreter while a dataflow
// layer keeps computed values current.
//
// # Two Graphs, One Program
//
// Every block owns ports of four kinds. Control ports (top and bottom)
// chain action blocks into sequences; data ports (inputPort and outputPort)
// carry values between function blocks and into the inputs of actions.
//
//	┌──────────────┐
//	│    Start     │            ┌──────────────┐
//	└──────┬───────┘            │ NumberInput  ├──┐ value
//	       │ bottom → top       └──────────────┘  │
//	┌──────┴───────┐                               ↓
//	│    Branch    │◄── condition ── ┌──────────────┐
//	│ ┌──────────┐ │                  │   Compare    │
//	│ │  Speak   │ │                  │  "x < 10"    │
//	│ └──────────┘ │                  └──────────────┘
//	└──────┬───────┘
//	┌──────┴───────┐
//	│    Servo     │
//	└──────────────┘
//
// The control graph is a forest: each control port holds at most one link
// and no link may close a cycle. The data graph fans out freely and is
// evaluated eagerly, in topological order, whenever a source block changes.
//
// # Packages
//
// Core:
//   - program: ports, block variants, connection rules, propagation,
//     chain geometry, document format and analysis
//   - program/expression: the arithmetic and relational expression language
//     used by Compare and SetValue blocks
//   - interpreter: runs every chain with a shared stop token
//   - device: Commander and Speaker collaborators over HTTP, NATS or WebSocket
//
// Infrastructure:
//   - programstore: versioned program documents in a NATS KV bucket
//   - runlog: slog handler that mirrors run logs onto NATS subjects
//   - natsclient: NATS connection management with a circuit breaker
//   - metric: Prometheus registry and the /metrics and /health server
//   - config: layered JSON/YAML/env configuration
//   - errors: error classes and sentinels shared by every package
//   - pkg/retry: backoff used by the device transports
//
// # Usage
//
//	prog, err := program.Unmarshal(data)
//	if err != nil {
//	    return err
//	}
//	if err := prog.Recalculate(); err != nil {
//	    logger.Warn("initial propagation failed", "error", err)
//	}
//
//	runner, err := interpreter.NewRunner(
//	    interpreter.WithSpeaker(device.NewLogSpeaker(logger)),
//	    interpreter.WithCommander(device.NopCommander{}),
//	    interpreter.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	return runner.Run(ctx, prog, interpreter.NewToken())
//
// # Binary
//
//	# check a program document
//	blockflow validate examples/wave.json
//
//	# run it against a device reachable over HTTP
//	blockflow run examples/wave.json -c configs/robot.yaml
//
//	# keep programs in NATS
//	blockflow import examples/wave.json --name wave
//	blockflow run wave --from-store
package blockflow
