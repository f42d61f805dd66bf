// Package testutil provides test doubles and program fixtures for blockflow
// packages.
//
// # Overview
//
// Collaborators:
//
//   - RecordingSpeaker records spoken texts in order. An optional OnSpeak hook
//     lets tests stop a run or inject failures at a precise point.
//   - MockCommander is a testify mock implementing device.Commander.
//   - MockNATSClient is an in-memory client with Publish, Subscribe and
//     Request. Responders for Request are installed with HandleRequest.
//   - MemKeyValue is an in-memory jetstream.KeyValue with revisions, delete
//     markers and bounded history, used by the KV and program store tests.
//
// Program fixtures build small graphs through the public program API:
//
//	prog := testutil.LinearProgram(t, "one", "two")
//	f := testutil.BranchProgram(t, 1, "inside", "after")
//	prog, loop := testutil.LoopProgram(t, "tick")
//
// SampleDocument is a complete stored program for decode and CLI tests.
//
// # Usage
//
//	speaker := testutil.NewRecordingSpeaker()
//	runner, err := interpreter.NewRunner(interpreter.WithSpeaker(speaker))
//	require.NoError(t, err)
//	require.NoError(t, runner.Run(ctx, prog, interpreter.NewToken()))
//	assert.Equal(t, []string{"one", "two"}, speaker.Spoken())
package testutil
