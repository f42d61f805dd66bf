// Package errors provides standardized error handling for blockflow.
//
// # Overview
//
// Errors fall into three classes that drive how callers react:
//
//   - Transient: device timeouts, lost NATS connections, rate limiting. Retry is allowed.
//   - Invalid: illegal graph edits, missing input values, malformed expressions. Reject, never retry.
//   - Fatal: unreachable code paths and broken configuration. Abort the run.
//
// Graph mutation functions in package program return invalid-class errors
// synchronously, before any mutation happens. The interpreter logs and counts
// every error returned by a block's Run but only lets fatal-class errors
// escape a chain.
//
// # Quick Start
//
// Wrap with context so logs carry the component and method:
//
//	if err := prog.Connect(out, in); err != nil {
//	    return errors.WrapInvalid(err, "Editor", "Drop", "connect ports")
//	}
//
// Check the class when deciding what to do:
//
//	switch errors.Classify(err) {
//	case errors.ErrorFatal:
//	    return err
//	case errors.ErrorTransient:
//	    // retry
//	}
//
// Sentinels work with the standard errors.Is through any number of wraps:
//
//	if errors.Is(err, errors.ErrPortKindMismatch) { ... }
//
// # Retry
//
// RetryConfig describes how many extra attempts a transport may make and
// converts to pkg/retry.Config via ToRetryConfig. ShouldRetry only admits
// transient-class errors.
package errors
