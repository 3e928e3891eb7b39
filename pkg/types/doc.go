// Package types defines the value types shared by the cross-memory server,
// its dispatcher and its clients.
//
// Design goals:
//   - Stable numeric statuses; the numbers are part of the call protocol.
//   - Typed errors with stable categories (protocol/authorization/resource/...).
//   - A plain Caller value instead of ambient thread state.
//
// This package has no dependencies beyond the standard library.
package types
