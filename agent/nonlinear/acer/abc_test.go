package acer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/goacer/agent"
	"github.com/samuelfneumann/goacer/agent/nonlinear/acer"
	"github.com/samuelfneumann/goacer/environment/envconfig"
	"github.com/samuelfneumann/goacer/experiment"
)

func TestABC(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ABC training in short mode")
	}

	tests := []struct {
		discrete, recurrent, episodic bool
		tMax                          int
		nTimesReplay                  float64
		disableOnlineUpdate           bool
		useTrustRegion                bool
	}{
		{true, false, true, 1, 0, false, true},
		{true, false, false, 2, 2, true, false},
		{true, true, true, 5, 2, false, true},
		{true, true, false, 5, 0, false, false},
		{false, false, true, 1, 2, false, true},
		{false, false, true, 2, 2, true, true},
		{false, true, false, 5, 0, false, false},
		{false, true, true, 5, 2, false, true},
	}

	for _, test := range tests {
		name := fmt.Sprintf("Discrete=%v/Recurrent=%v/Episodic=%v/TMax=%v/"+
			"Replay=%v/Online=%v/TrustRegion=%v", test.discrete,
			test.recurrent, test.episodic, test.tMax, test.nTimesReplay,
			!test.disableOnlineUpdate, test.useTrustRegion)

		t.Run(name, func(t *testing.T) {
			c := acer.DefaultConfig()
			c.TMax = test.tMax
			c.Gamma = 0.5
			c.Beta = 1e-2
			c.Recurrent = test.recurrent
			c.NTimesReplay = test.nTimesReplay
			c.DisableOnlineUpdate = test.disableOnlineUpdate
			c.UseTrustRegion = test.useTrustRegion
			// Evaluations are greedy, training still samples from the
			// policy
			c.ActDeterministically = true
			c.ReplayStartSize = 100

			cutoff := 0
			if !test.episodic {
				cutoff = 2
			}
			env := envconfig.NewConfig(envconfig.ABC, 2, !test.discrete,
				test.episodic, test.recurrent, false, cutoff, 0.99)

			score := 1.0
			exp := experiment.Config{
				Agent:           agent.NewTypedConfig(c),
				Env:             env,
				Seed:            1,
				Processes:       4,
				Steps:           100_000,
				EvalFrequency:   500,
				EvalNRuns:       5,
				SuccessfulScore: &score,
			}

			dir := t.TempDir()
			result, err := experiment.TrainAsync(context.Background(), exp,
				dir)
			if err != nil {
				t.Fatal(err)
			}
			if !result.Successful {
				t.Fatalf("agent did not reach the successful score in %v "+
					"steps", result.Steps)
			}

			// Parameters may change after a successful evaluation, so the
			// successful parameters are loaded explicitly
			e, _, err := env.CreateEval(2)
			if err != nil {
				t.Fatal(err)
			}
			shared, err := acer.NewShared(e, c, 2)
			if err != nil {
				t.Fatal(err)
			}
			a, err := shared.NewAgent(2)
			if err != nil {
				t.Fatal(err)
			}
			err = a.(agent.Saver).Load(filepath.Join(dir,
				experiment.SuccessfulDir))
			if err != nil {
				t.Fatal(err)
			}

			returns, err := experiment.Evaluate(a, e, 5)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range returns {
				if r != 1 {
					t.Errorf("incorrect return \n\twant(1) \n\thave(%v)", r)
				}
			}
		})
	}
}
