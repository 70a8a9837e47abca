package canon

import "errors"

// Sentinel errors identify the taxonomy from the error-handling design.
// Concrete errors wrap one of these with fmt.Errorf("...: %w", ...) so
// callers can classify a failure with errors.Is while still getting a
// venue/ticker-scoped message.
var (
	// ErrBuilder marks invalid configuration caught synchronously at build time.
	ErrBuilder = errors.New("builder error")
	// ErrParsing marks a malformed or unexpected upstream message.
	ErrParsing = errors.New("parsing error")
	// ErrTransport marks a connection, send, or socket failure.
	ErrTransport = errors.New("transport error")
	// ErrExchange marks a venue-rejected subscription or protocol-level error.
	ErrExchange = errors.New("exchange error")
	// ErrEvent marks a LevelUpdated or TradeEvent that violates a book/tape invariant.
	ErrEvent = errors.New("event error")
	// ErrRepo marks an analytics-store call failure.
	ErrRepo = errors.New("repo error")
	// ErrInternal marks unexpected internal state, e.g. a lookup miss that should be impossible.
	ErrInternal = errors.New("internal error")
)
