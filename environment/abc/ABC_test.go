package abc

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goacer/environment"
	ts "github.com/samuelfneumann/goacer/timestep"
)

func discreteAction(a int) mat.Vector {
	return mat.NewVecDense(1, []float64{float64(a)})
}

func TestEpisodicCorrectActions(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		env, step, err := New(size, true, true, false, true, 0.99, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !step.First() {
			t.Errorf("first step should have type First: have(%v)",
				step.StepType)
		}

		total := 0.0
		for i := 0; i < size; i++ {
			var last bool
			step, last = env.Step(discreteAction(i))
			total += step.Reward

			if i < size-1 && last {
				t.Fatalf("episode ended early at step %v with size %v", i,
					size)
			}
		}

		if !step.Terminal() {
			t.Errorf("episode should end in a terminal state: have(%v)",
				step.EndType)
		}
		if total != 1.0 {
			t.Errorf("incorrect return \n\twant(1) \n\thave(%v)", total)
		}
	}
}

func TestEpisodicWrongAction(t *testing.T) {
	env, _, err := New(3, true, true, false, true, 1.0, 1)
	if err != nil {
		t.Fatal(err)
	}

	step, last := env.Step(discreteAction(1))
	if !last || !step.Terminal() {
		t.Errorf("wrong action should end the episode")
	}
	if step.Reward != 0 {
		t.Errorf("wrong action should give no reward: have(%v)",
			step.Reward)
	}
}

func TestContinuingRestarts(t *testing.T) {
	env, _, err := New(2, true, false, false, true, 1.0, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Wrong action restarts the chain
	step, last := env.Step(discreteAction(1))
	if last {
		t.Errorf("continuing environment should not end episodes")
	}
	if step.Observation.AtVec(0) != 1.0 {
		t.Errorf("wrong action should restart the chain")
	}

	// Finishing the chain restarts it with a reward
	env.Step(discreteAction(0))
	step, _ = env.Step(discreteAction(1))
	if step.Reward != 1.0 {
		t.Errorf("finishing the chain should give reward 1: have(%v)",
			step.Reward)
	}
	if step.Observation.AtVec(0) != 1.0 {
		t.Errorf("finishing the chain should restart it")
	}
}

func TestContinuousDeterministicArgmax(t *testing.T) {
	env, _, err := New(2, false, true, false, true, 1.0, 1)
	if err != nil {
		t.Fatal(err)
	}

	step, _ := env.Step(mat.NewVecDense(2, []float64{0.9, -0.3}))
	if step.Last() {
		t.Fatalf("argmax of action should be the correct action")
	}
	step, _ = env.Step(mat.NewVecDense(2, []float64{-1.0, 0.2}))
	if !step.Terminal() || step.Reward != 1.0 {
		t.Errorf("argmax of action should finish the chain")
	}
}

func TestObservation(t *testing.T) {
	tests := []struct {
		partiallyObservable bool
		offsetVisibleLater  bool
	}{
		{false, true},
		{true, false},
	}

	for _, test := range tests {
		// Search for a seed that produces a non-zero offset
		var env *ABC
		var step ts.TimeStep
		for seed := uint64(0); ; seed++ {
			var err error
			env, step, err = New(2, true, true, test.partiallyObservable,
				false, 1.0, seed)
			if err != nil {
				t.Fatal(err)
			}
			if env.offset != 0 {
				break
			}
		}

		dims := env.ObservationSpec().Dims()
		if step.Observation.Len() != dims || dims != 2+1+MaxOffset {
			t.Fatalf("invalid observation size \n\twant(%v) \n\thave(%v)",
				2+1+MaxOffset, step.Observation.Len())
		}
		if step.Observation.AtVec(3) != 1.0 {
			t.Errorf("offset should be observable in the first state")
		}

		step, _ = env.Step(discreteAction(env.correctAction()))
		visible := step.Observation.AtVec(3) == 1.0
		if visible != test.offsetVisibleLater {
			t.Errorf("offset visibility after first step \n\twant(%v) "+
				"\n\thave(%v)", test.offsetVisibleLater, visible)
		}
	}
}

func TestStepLimit(t *testing.T) {
	abc, _, err := New(2, true, false, false, true, 1.0, 1)
	if err != nil {
		t.Fatal(err)
	}
	env := environment.Wrap(abc, environment.NewStepLimit(2))
	env.Reset()

	step, last := env.Step(discreteAction(0))
	if last {
		t.Fatalf("episode should not end before the step limit")
	}
	step, last = env.Step(discreteAction(1))
	if !last || !step.Timeout() {
		t.Errorf("episode should time out at the step limit: have(%v)",
			step)
	}
}

func TestSpecs(t *testing.T) {
	env, _, err := New(2, true, true, false, true, 1.0, 1)
	if err != nil {
		t.Fatal(err)
	}
	n, err := env.ActionSpec().NumActions()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("invalid number of actions \n\twant(2) \n\thave(%v)", n)
	}

	cont, _, err := New(3, false, true, false, true, 1.0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if cont.ActionSpec().Cardinality != environment.Continuous {
		t.Errorf("continuous ABC should have continuous actions")
	}
	if cont.ActionSpec().Dims() != 3 {
		t.Errorf("invalid action dimensions \n\twant(3) \n\thave(%v)",
			cont.ActionSpec().Dims())
	}
}
