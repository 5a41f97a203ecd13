// Package acer implements the Actor-Critic with Experience Replay
// (ACER) algorithm.
//
// ACER agents learn both online, from the trajectory they just
// collected, and offline, from windows of past episodes sampled from a
// replay buffer. Off-policy policy gradients use truncated importance
// sampling with bias correction, and policy updates may be constrained
// to a trust region around a moving average of the policy. Many ACER
// agents can learn asynchronously with the same Shared state: each
// agent computes gradients on its own copy of the networks and applies
// them to the shared parameters.
//
// Both discrete actions (softmax policies) and continuous actions
// (Gaussian policies with a stochastic dueling network) are
// supported, with feed-forward or recurrent networks.
package acer

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/goacer/agent"
	"github.com/samuelfneumann/goacer/distribution"
	"github.com/samuelfneumann/goacer/expreplay"
	ts "github.com/samuelfneumann/goacer/timestep"
)

var log logrus.FieldLogger = logrus.WithField("pkg", "acer")

// transition is a single transition of an episode together with the
// behaviour policy which selected its action
type transition struct {
	obs      []float64
	action   []float64
	reward   float64
	nextObs  []float64
	terminal bool

	// mu is the policy which selected action
	mu distribution.Distribution

	// hidden is the recurrent hidden state before obs, nil for
	// feed-forward models
	hidden []float64
}

// ACER implements an ACER agent
type ACER struct {
	shared *Shared
	config Config
	c      float64

	// act selects actions, train computes gradients, and avg computes
	// the average policy
	act, train, avg *model

	writer     *expreplay.EpisodeWriter[transition]
	trajectory []transition

	// Previous observation, the behaviour policy in that state, and the
	// hidden state before that observation
	prevObs    []float64
	prevMu     distribution.Distribution
	prevHidden []float64

	// Recurrent hidden states for training and evaluation
	hidden, evalHidden []float64

	episodeEnded bool
	eval         bool

	src     rand.Source
	poisson distuv.Poisson

	stats *statistics
}

// newACER returns a new ACER agent learning with the shared state
func newACER(s *Shared, seed uint64) (*ACER, error) {
	c := s.config
	rows := c.TMax + 1

	act, err := newModel(s.arch, 1, false, "")
	if err != nil {
		return nil, errors.Wrap(err, "newACER: could not create acting model")
	}
	train, err := newModel(s.arch, rows, true, "")
	if err != nil {
		return nil, errors.Wrap(err, "newACER: could not create training "+
			"model")
	}
	avg, err := newModel(s.arch, rows, false, "")
	if err != nil {
		return nil, errors.Wrap(err, "newACER: could not create average "+
			"model")
	}

	if err := s.params.Sync(act.learnables); err != nil {
		return nil, errors.Wrap(err, "newACER")
	}
	if err := s.params.Sync(train.learnables); err != nil {
		return nil, errors.Wrap(err, "newACER")
	}

	src := rand.NewSource(seed)
	return &ACER{
		shared: s,
		config: c,
		c:      c.truncationThreshold(),
		act:    act,
		train:  train,
		avg:    avg,
		writer: s.replay.NewWriter(),
		src:    src,
		poisson: distuv.Poisson{
			Lambda: c.NTimesReplay,
			Src:    src,
		},
		stats: newStatistics(c.StatisticsDecay),
	}, nil
}

// policy returns the policy distribution predicted in row t of the
// model outputs
func (a *ACER) policy(outputs [][][]float64, t int) (
	distribution.Distribution, error) {
	if a.shared.arch.discrete {
		return distribution.NewSoftmax(outputs[0][t], a.src), nil
	}
	return distribution.NewGaussian(outputs[0][t], outputs[1][t], a.src)
}

// SelectAction selects an action in the timestep t. In training mode,
// actions are always sampled from the policy, which is recorded as the
// behaviour policy of the transition. In evaluation mode, the most
// probable action is selected if the agent acts deterministically.
func (a *ACER) SelectAction(t ts.TimeStep) *mat.VecDense {
	obs := mat.Col(nil, 0, t.Observation)

	hidden := a.hidden
	if a.eval {
		hidden = a.evalHidden
	}

	if err := a.act.setHidden(hidden); err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}
	if err := a.act.setObs([][]float64{obs}); err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}
	outputs, err := a.act.run()
	if err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}
	pi, err := a.policy(outputs, 0)
	if err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}

	var action []float64
	if a.eval && a.config.ActDeterministically {
		action = pi.MostProbable()
	} else {
		action = pi.Sample()
	}

	next := a.act.hiddenAt(0)
	if a.eval {
		a.evalHidden = next
	} else {
		a.prevObs = obs
		a.prevMu = pi
		a.prevHidden = hidden
		a.hidden = next
	}

	return mat.NewVecDense(len(action), action)
}

// ObserveFirst records the first timestep of an episode
func (a *ACER) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		log.WithField("step", t.Number).Warn("observeFirst should only be " +
			"called on the first timestep")
	}

	if a.eval {
		a.evalHidden = nil
		return nil
	}

	// The previous episode was cut short before its end was observed
	if len(a.trajectory) > 0 || a.writer.Len() > 0 {
		a.endEpisode()
	}
	a.hidden = nil
	a.episodeEnded = false
	return nil
}

// Observe records that action in the previous timestep led to the
// timestep next
func (a *ACER) Observe(action mat.Vector, next ts.TimeStep) error {
	if a.eval {
		return nil
	}
	if a.prevObs == nil {
		return fmt.Errorf("observe: no action was selected before " +
			"observing")
	}

	tr := transition{
		obs:      a.prevObs,
		action:   mat.Col(nil, 0, action),
		reward:   next.Reward,
		nextObs:  mat.Col(nil, 0, next.Observation),
		terminal: next.Terminal(),
		mu:       a.prevMu,
		hidden:   a.prevHidden,
	}
	a.writer.Append(tr)
	a.trajectory = append(a.trajectory, tr)
	a.episodeEnded = next.Last()

	a.prevObs = nil
	return nil
}

// Step performs the updates which are due: an online update once the
// agent has collected TMax transitions or the episode has ended,
// followed by a number of replay updates.
func (a *ACER) Step() error {
	if a.eval {
		return nil
	}
	if len(a.trajectory) < a.config.TMax && !a.episodeEnded {
		return nil
	}

	if !a.config.DisableOnlineUpdate {
		if err := a.update(a.trajectory, true); err != nil {
			return errors.Wrap(err, "step: online update")
		}
	}
	a.trajectory = nil

	if err := a.replay(); err != nil {
		return errors.Wrap(err, "step")
	}

	if a.episodeEnded {
		a.endEpisode()
	}
	return nil
}

// replay performs a Poisson distributed number of replay updates
func (a *ACER) replay() error {
	n := 0
	if a.config.NTimesReplay > 0 {
		n = int(a.poisson.Rand())
	}

	for i := 0; i < n; i++ {
		window, err := a.shared.replay.Sample(a.config.TMax)
		if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "replay")
		}

		if err := a.update(window, false); err != nil {
			return errors.Wrap(err, "replay")
		}
	}
	return nil
}

// endEpisode adds the episode in progress to the replay buffer and
// resets the recurrent hidden state
func (a *ACER) endEpisode() {
	a.writer.StopEpisode()
	a.trajectory = nil
	a.hidden = nil
	a.prevObs = nil
	a.episodeEnded = false
}

// EndEpisode ends the current episode. Transitions of the episode
// which have not yet been used in an online update are only used in
// replay updates.
func (a *ACER) EndEpisode() {
	if a.eval {
		a.evalHidden = nil
		return
	}
	a.endEpisode()
}

// Eval sets the agent to evaluation mode
func (a *ACER) Eval() {
	a.eval = true
	a.evalHidden = nil
}

// Train sets the agent to training mode
func (a *ACER) Train() {
	a.eval = false
}

// IsEval returns whether the agent is in evaluation mode
func (a *ACER) IsEval() bool {
	return a.eval
}

// Save saves the shared parameters to dir
func (a *ACER) Save(dir string) error {
	return a.shared.Save(dir)
}

// Load loads the shared parameters from dir into the shared state and
// the agent's networks
func (a *ACER) Load(dir string) error {
	if err := a.shared.Load(dir); err != nil {
		return err
	}
	return a.sync()
}

// sync copies the shared parameters into the agent's networks
func (a *ACER) sync() error {
	if err := a.shared.params.Sync(a.act.learnables); err != nil {
		return errors.Wrap(err, "sync")
	}
	if err := a.shared.params.Sync(a.train.learnables); err != nil {
		return errors.Wrap(err, "sync")
	}
	return nil
}

// Statistics returns moving averages of quantities computed during
// updates
func (a *ACER) Statistics() []agent.Statistic {
	return a.stats.get()
}

// Close releases the resources held by the agent's networks
func (a *ACER) Close() error {
	for _, m := range []*model{a.act, a.train, a.avg} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}
