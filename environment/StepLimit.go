package environment

import ts "github.com/samuelfneumann/goacer/timestep"

// StepLimit is an Ender which cuts episodes off after a fixed number of
// steps. Episodes cut off by a StepLimit end in a Timeout rather than a
// terminal state, so agents may still bootstrap from the last
// observation.
type StepLimit struct {
	limit int
}

// NewStepLimit returns a StepLimit which ends episodes once they reach
// limit steps. A limit below 1 never ends an episode.
func NewStepLimit(limit int) StepLimit {
	return StepLimit{limit: limit}
}

// End marks t as a Timeout if its episode has reached the step limit
func (s StepLimit) End(t *ts.TimeStep) bool {
	if s.limit < 1 || t.Number < s.limit {
		return false
	}
	t.SetEnd(ts.Timeout)
	return true
}
