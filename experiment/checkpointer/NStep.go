package checkpointer

import (
	"sync"

	"github.com/pkg/errors"
)

// nStep implements checkpointing every N steps. It is safe for
// concurrent use.
type nStep struct {
	mu       sync.Mutex
	interval int
	object   Serializable // Object to save

	// dirname returns the directory to save the object in.
	//
	// Use Enumerator to save each checkpoint in a separate directory
	// with an incremented number as a suffix (e.g. checkpoint1,
	// checkpoint2, ..., checkpointK).
	dirname func() string
}

// NewNStep returns a checkpointer that checkpoints every n steps.
func NewNStep(n int, object Serializable,
	dirname func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, errors.Errorf("newNStep: checkpoint interval must be "+
			"positive \n\thave(%v)", n)
	}
	return &nStep{
		interval: n,
		object:   object,
		dirname:  dirname,
	}, nil
}

// Checkpoint checkpoints the Checkpointer's tracked object by calling
// its Save() method if step is a multiple of the interval
func (n *nStep) Checkpoint(step int) error {
	if step%n.interval != 0 {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	dir := n.dirname()
	if err := n.object.Save(dir); err != nil {
		return errors.Wrapf(err, "checkpoint: could not save to %v", dir)
	}
	return nil
}
