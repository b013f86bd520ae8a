package ports

import "github.com/evlink-labs/evlink/pkg/log"

// Logger is the structured logging port. It aliases the pkg/log contract
// so the session core and external callers share one logging vocabulary.
type Logger = log.Logger

// Field is a key-value pair attached to a log message.
type Field = log.Field

// Field constructors re-exported for use at call sites inside the core.
var (
	String   = log.String
	Int      = log.Int
	Int64    = log.Int64
	Float64  = log.Float64
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
	Any      = log.Any
)
