package sandbox

import "errors"

var (
	ErrReadOnly       = errors.New("server is in read-only mode")
	ErrWritesDisabled = errors.New("writes are disabled; set MCP_WRITE_ENABLED=true to enable them")
)

// WriteGate holds the two boot-time flags that must both permit mutation.
type WriteGate struct {
	ReadOnly     bool
	WriteEnabled bool
}

// Check returns nil only when writes are allowed. Read-only wins over
// a missing enable flag.
func (g WriteGate) Check() error {
	if g.ReadOnly {
		return ErrReadOnly
	}
	if !g.WriteEnabled {
		return ErrWritesDisabled
	}
	return nil
}
