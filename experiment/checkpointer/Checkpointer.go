// Package checkpointer implements Checkpointers, which periodically
// save objects such as agents during an experiment
package checkpointer

import "fmt"

// Serializable is an object that can be saved to a directory
type Serializable interface {
	Save(dir string) error
}

// Checkpointer checkpoints/saves serializable objects based on the
// number of steps taken in an experiment
type Checkpointer interface {
	Checkpoint(step int) error
}

// Enumerator returns a function which returns consecutively numbered
// names with the given prefix. Each time the returned function is
// called, the number suffix is one higher than on the previous call,
// starting at start+1.
func Enumerator(start int, prefix string) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%v%v", prefix, i)
	}
}
