package availability

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed availability rule. It is raised at
// the write boundary so the generator never sees invalid input.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid availability: " + e.Msg
	}
	return fmt.Sprintf("invalid availability: %s: %s", e.Field, e.Msg)
}

var (
	ErrInvalidSlotID   = errors.New("invalid slot identifier")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrUnknownTimezone = errors.New("unknown timezone")
	ErrInvalidFormat   = errors.New("hour format must be 12h or 24h")
)

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
