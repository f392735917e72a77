package core

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// InvariantError reports an internal bug. It is raised with panic and never retried.
type InvariantError struct {
	ID  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated [%s]: %s", e.ID, e.Msg)
}

// Fatal logs the violation under its diagnostic id and panics.
func Fatal(id, format string, args ...any) {
	err := &InvariantError{ID: id, Msg: fmt.Sprintf(format, args...)}
	log.Error().Str("module", "core").Str("diag_id", id).Msg(err.Msg)
	panic(err)
}
