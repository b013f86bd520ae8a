package log

// Nop implements Logger by discarding every message. It is the default
// logger for embedded sessions.
type Nop struct{}

// NewNop creates a logger that discards everything.
func NewNop() *Nop {
	return &Nop{}
}

// Debug discards the message.
func (Nop) Debug(msg string, fields ...Field) {}

// Info discards the message.
func (Nop) Info(msg string, fields ...Field) {}

// Warn discards the message.
func (Nop) Warn(msg string, fields ...Field) {}

// Error discards the message.
func (Nop) Error(msg string, fields ...Field) {}
