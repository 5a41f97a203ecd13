package checkpointer

import (
	"fmt"
	"sync"
	"testing"
)

type recorder struct {
	mu   sync.Mutex
	dirs []string
	err  error
}

func (r *recorder) Save(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, dir)
	return r.err
}

func TestEnumerator(t *testing.T) {
	next := Enumerator(0, "checkpoint")
	for i := 1; i <= 3; i++ {
		want := fmt.Sprintf("checkpoint%v", i)
		if have := next(); have != want {
			t.Errorf("incorrect filename \n\twant(%v) \n\thave(%v)", want,
				have)
		}
	}
}

func TestNStep(t *testing.T) {
	r := &recorder{}
	c, err := NewNStep(10, r, Enumerator(0, "checkpoint"))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for step := 1; step <= 50; step++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			if err := c.Checkpoint(step); err != nil {
				t.Error(err)
			}
		}(step)
	}
	wg.Wait()

	if len(r.dirs) != 5 {
		t.Fatalf("incorrect number of checkpoints \n\twant(5) \n\thave(%v)",
			len(r.dirs))
	}
	seen := make(map[string]bool)
	for _, dir := range r.dirs {
		if seen[dir] {
			t.Errorf("checkpoint directory %v was used twice", dir)
		}
		seen[dir] = true
	}
}

func TestNStepErrors(t *testing.T) {
	if _, err := NewNStep(0, &recorder{}, nil); err == nil {
		t.Errorf("non-positive intervals should be rejected")
	}

	r := &recorder{err: fmt.Errorf("disk full")}
	c, err := NewNStep(1, r, Enumerator(0, "checkpoint"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Checkpoint(1); err == nil {
		t.Errorf("save errors should be returned")
	}
}
