// Package errors provides standardized error handling patterns for the ED247 stack.
//
// # Overview
//
// The errors package implements a three-class error classification system mapped onto
// the ED247 error taxonomy:
//
//   - Invalid: configuration errors (malformed tree, byte-offset gaps, unsupported
//     revision), protocol/decode errors (truncated frame, size mismatch) and usage
//     errors (wrong stream direction, bad sample size)
//   - Fatal: resource errors (socket creation, bind, multicast join)
//   - Transient: expected outcomes of a wait (timeout, no data)
//
// Capacity overflow of a sample stack is not an error at all: the oldest sample is
// dropped and the push reports a full stack.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	component.method: action failed: underlying error
//
// For example:
//
//	return errors.WrapInvalid(errors.ErrSampleSize, "Stream", "PushSample", "sample size check")
//
// Classification survives wrapping, so callers only need:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
//	if errors.IsFatal(err) { ... }
package errors
