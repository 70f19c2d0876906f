// Package errors provides error handling for jitserverd.
//
// It re-exports github.com/cockroachdb/errors, giving every component
// stack traces, structured wrapping, and hint/detail accumulation without
// each package importing cockroachdb/errors directly.
//
// Usage:
//
//	err := errors.New("session not found")
//	return errors.Wrapf(err, "dequeue request for client %d", clientID)
//	return errors.WithHint(err, "client should retry with a fresh session")
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping.
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User/operator-facing context.
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection.
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// AssertionFailedf marks a condition that should be structurally
// impossible; used for invariant violations we still want a stack trace
// and a bug report for, rather than a silent panic.
var AssertionFailedf = crdb.AssertionFailedf
