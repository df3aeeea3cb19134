package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials means no complete API_KEY/AGENT_ID pair was found.
	ErrMissingCredentials = errors.New("missing credentials: API_KEY and AGENT_ID must both be set")

	// ErrInvalidSource means an imported file was unreadable, unparsable or incomplete.
	ErrInvalidSource = errors.New("invalid credential source")
)

// SourceError describes why a credential file could not be used.
type SourceError struct {
	Path string
	Op   string // "read", "parse", "validate", "persist"
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("credential source %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is reports source failures as ErrInvalidSource. Persist failures are not
// the source's fault and keep their own identity.
func (e *SourceError) Is(target error) bool {
	return target == ErrInvalidSource && e.Op != "persist"
}
