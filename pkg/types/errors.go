package types

import (
	"fmt"
	"strings"
)

// InvalidEnumError reports a free-form label that does not belong to a
// closed enumeration. The message names the accepted set so the submitter
// can correct the record.
type InvalidEnumError struct {
	Field string
	Value string
	Valid []string
}

func (e *InvalidEnumError) Error() string {
	quoted := make([]string, 0, len(e.Valid))
	for _, v := range e.Valid {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return fmt.Sprintf("invalid %s %q: must be one of {%s}", e.Field, e.Value, strings.Join(quoted, ", "))
}
