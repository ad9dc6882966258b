package rubric

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCompetency is returned for keys absent from the catalog.
	ErrUnknownCompetency = errors.New("unknown competency")
	// ErrUnknownLevel is returned for levels the competency does not define.
	ErrUnknownLevel = errors.New("unknown level")
	// ErrMissingCompetency is returned when a full grading omits a competency.
	ErrMissingCompetency = errors.New("missing competency selection")
	// ErrInvalidPoints is returned when points do not map onto a level.
	ErrInvalidPoints = errors.New("invalid competency points")
)

// JustificationError names the reason ids that keep a selection from justifying its level.
type JustificationError struct {
	Competency string
	Level      int
	Missing    []string
	Extra      []string
}

func (e *JustificationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("%s level %d: incomplete justification (%s)", e.Competency, e.Level, strings.Join(parts, "; "))
}

// JustificationErrors aggregates the failures of a multi-competency resolution.
type JustificationErrors []*JustificationError

func (e JustificationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		msgs = append(msgs, item.Error())
	}
	return strings.Join(msgs, "; ")
}
