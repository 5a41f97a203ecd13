package paramserver

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ShapeError is returned when a gradient or a saved parameter does not
// match the shape of the shared parameter
type ShapeError struct {
	Name string
	Want tensor.Shape
	Have tensor.Shape
}

func (s *ShapeError) Error() string {
	return fmt.Sprintf("parameter %v: invalid shape \n\twant(%v) "+
		"\n\thave(%v)", s.Name, s.Want, s.Have)
}

// IsShapeError returns whether the cause of err is a *ShapeError
func IsShapeError(err error) bool {
	_, ok := errors.Cause(err).(*ShapeError)
	return ok
}
