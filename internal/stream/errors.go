package stream

import "github.com/eclipse-openj9/openj9-sub029/errors"

// Distinguished transport error kinds (spec.md §4.A, §7). Every one is a
// cockroachdb/errors sentinel matched with errors.Is at call sites, the
// same pattern this codebase's error package documents for sentinel
// errors ("var ErrNotFound = errors.New(...)").
var (
	// ErrStreamFailure is a generic, non-fatal transport write/read
	// failure: the caller should drop the stream but the server itself
	// is healthy.
	ErrStreamFailure = errors.New("stream: transport failure")

	// ErrConnectionTerminate is raised when the client explicitly closes
	// the connection (wire message ConnectionTerminate, or EOF).
	ErrConnectionTerminate = errors.New("stream: connection terminated by client")

	// ErrInterrupted is raised when a blocking read/write is interrupted
	// by local cancellation (e.g. context done, or a class-unload gate
	// forcing a reader to abandon a send — spec.md §4.F).
	ErrInterrupted = errors.New("stream: interrupted")

	// ErrMessageTypeMismatch is raised when a reply's type tag does not
	// equal the type the caller was waiting for.
	ErrMessageTypeMismatch = errors.New("stream: message type mismatch")

	// ErrVersionIncompatible is raised when the first frame on a
	// connection carries a version tag the server does not speak.
	ErrVersionIncompatible = errors.New("stream: incompatible wire version")

	// ErrOutOfOrder is StreamOOO from spec.md §4.D rule 3: the session
	// already cleared its caches past this request's criticalSeqNo, so
	// the client must retry with fresh dependencies.
	ErrOutOfOrder = errors.New("stream: request is out of order (stale critical)")

	// ErrClientSessionTerminate is raised when the client sends an
	// explicit ClientSessionTerminate message.
	ErrClientSessionTerminate = errors.New("stream: client requested session termination")

	// ErrCompilationInterrupted is raised when the client aborts an
	// in-flight compile, or (per spec.md §4.F) when a reader about to
	// send a non-reply message observes classUnloadingAttempted set.
	ErrCompilationInterrupted = errors.New("stream: compilation interrupted")
)
