package acer

import (
	"sync"

	"github.com/samuelfneumann/goacer/agent"
)

// Names of the statistics reported by ACER agents
const (
	AverageValue   = "average_value"
	AverageEntropy = "average_entropy"
	AverageKL      = "average_kl"
	AveragePiLoss  = "average_pi_loss"
	AverageQLoss   = "average_q_loss"
	NUpdates       = "n_updates"
)

// statistics tracks exponential moving averages of quantities computed
// during updates
type statistics struct {
	mu    sync.Mutex
	decay float64

	value, entropy, kl, piLoss, qLoss float64
	updates                           int
}

func newStatistics(decay float64) *statistics {
	return &statistics{decay: decay}
}

func (s *statistics) ema(avg *float64, x float64) {
	*avg = s.decay*(*avg) + (1-s.decay)*x
}

// observe records the values of a single timestep of an update
func (s *statistics) observe(value, entropy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ema(&s.value, value)
	s.ema(&s.entropy, entropy)
}

// observeKL records the KL divergence from the average policy of a
// single timestep of an update
func (s *statistics) observeKL(kl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ema(&s.kl, kl)
}

// observeUpdate records the total losses of an update
func (s *statistics) observeUpdate(piLoss, qLoss float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ema(&s.piLoss, piLoss)
	s.ema(&s.qLoss, qLoss)
	s.updates++
}

func (s *statistics) get() []agent.Statistic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []agent.Statistic{
		{Name: AverageValue, Value: s.value},
		{Name: AverageEntropy, Value: s.entropy},
		{Name: AverageKL, Value: s.kl},
		{Name: AveragePiLoss, Value: s.piLoss},
		{Name: AverageQLoss, Value: s.qLoss},
		{Name: NUpdates, Value: float64(s.updates)},
	}
}
