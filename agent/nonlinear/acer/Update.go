package acer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goacer/actionvalue"
	"github.com/samuelfneumann/goacer/distribution"
	"github.com/samuelfneumann/goacer/network"
)

// retraceWeight returns the Retrace trace coefficient min(1, ρ)
func retraceWeight(rho float64) float64 {
	if math.IsNaN(rho) {
		return 0
	}
	return math.Min(1, rho)
}

// retrace returns the action value targets of a window of transitions.
// Targets are computed backwards from bootstrap, the value of the state
// following the window (zero if the window ends in a terminal state):
//
//	R ← r_t + γR,  target_t = R,  R ← min(1, ρ_t)(R − Q_t) + V_t
func retrace(rewards, values, actionValues, rhos []float64, bootstrap,
	gamma float64) []float64 {
	targets := make([]float64, len(rewards))
	R := bootstrap
	for t := len(rewards) - 1; t >= 0; t-- {
		R = rewards[t] + gamma*R
		targets[t] = R
		R = retraceWeight(rhos[t])*(R-actionValues[t]) + values[t]
	}
	return targets
}

// policyLoss returns the policy loss of a single state: the raw policy
// gradient loss projected into the trust region around avg, plus the
// entropy bonus, scaled by PiLossCoef. If the trust region is not used,
// avg is ignored and the returned KL is zero.
func (c Config) policyLoss(raw Loss, pi,
	avg distribution.Distribution) (Loss, float64) {
	loss, kl := raw, 0.0
	if c.UseTrustRegion {
		loss, kl = KLConstrainedLoss(raw, pi, avg, c.TrustRegionDelta)
	}
	loss = loss.add(EntropyLoss(pi, c.Beta))
	return loss.scale(c.PiLossCoef), kl
}

// addRow adds values to row t of a matrix
func addRow(m *tensor.Dense, t int, values []float64) {
	cols := m.Shape()[1]
	data := m.Data().([]float64)
	floats.Add(data[t*cols:(t+1)*cols], values)
}

// addAt adds value to element (t, j) of a matrix
func addAt(m *tensor.Dense, t, j int, value float64) {
	cols := m.Shape()[1]
	m.Data().([]float64)[t*cols+j] += value
}

// forward runs the training model on a window of transitions and
// returns the model outputs, the policy in each state of the window
// including the state following the last transition, and for
// continuous actions, the action sampled from the policy in each state
func (a *ACER) forward(window []transition) ([][][]float64,
	[]distribution.Distribution, [][]float64, error) {
	T := len(window)
	obs := make([][]float64, T+1)
	for t := range window {
		obs[t] = window[t].obs
	}
	obs[T] = window[T-1].nextObs

	m := a.train
	if err := m.setHidden(window[0].hidden); err != nil {
		return nil, nil, nil, err
	}
	if err := m.setObs(obs); err != nil {
		return nil, nil, nil, err
	}
	if err := m.setGrads(m.zeroGrads()); err != nil {
		return nil, nil, nil, err
	}
	if !m.arch.discrete {
		if err := m.setActions(nil); err != nil {
			return nil, nil, nil, err
		}
	}

	outputs, err := m.run()
	if err != nil {
		return nil, nil, nil, err
	}

	pis := make([]distribution.Distribution, T+1)
	for t := range pis {
		if pis[t], err = a.policy(outputs, t); err != nil {
			return nil, nil, nil, err
		}
	}
	if m.arch.discrete {
		return outputs, pis, nil, nil
	}

	// Evaluate the taken and sampled actions with the dueling network
	sampled := make([][]float64, T)
	actions := make([][][]float64, T)
	for t := range window {
		row := make([][]float64, 0, m.arch.sdnSamples())
		row = append(row, window[t].action)
		for i := 1; i < m.arch.sdnSamples(); i++ {
			row = append(row, pis[t].Sample())
		}
		sampled[t] = row[1]
		actions[t] = row
	}
	if err := m.setActions(actions); err != nil {
		return nil, nil, nil, err
	}
	if outputs, err = m.run(); err != nil {
		return nil, nil, nil, err
	}

	return outputs, pis, sampled, nil
}

// average returns the average policy in each state of the window
func (a *ACER) average(window []transition) ([]distribution.Distribution,
	error) {
	obs := make([][]float64, len(window))
	for t := range window {
		obs[t] = window[t].obs
	}

	m := a.avg
	if err := a.shared.params.SyncAverage(m.learnables); err != nil {
		return nil, err
	}
	if err := m.setHidden(window[0].hidden); err != nil {
		return nil, err
	}
	if err := m.setObs(obs); err != nil {
		return nil, err
	}

	outputs, err := m.run()
	if err != nil {
		return nil, err
	}

	avgs := make([]distribution.Distribution, len(window))
	for t := range avgs {
		if avgs[t], err = a.policy(outputs, t); err != nil {
			return nil, err
		}
	}
	return avgs, nil
}

// update computes the gradient of the ACER loss on a window of
// consecutive transitions and applies it to the shared parameters.
// Online updates use transitions selected by the current policy,
// replay updates correct for the behaviour policies stored with the
// transitions.
func (a *ACER) update(window []transition, online bool) error {
	T := len(window)
	if T == 0 {
		log.Debug("skipping update with an empty trajectory")
		return nil
	}
	if T > a.config.TMax {
		return fmt.Errorf("update: trajectory too long \n\twant(<= %v) "+
			"\n\thave(%v)", a.config.TMax, T)
	}

	if err := a.shared.params.Sync(a.train.learnables); err != nil {
		return errors.Wrap(err, "update")
	}

	outputs, pis, sampled, err := a.forward(window)
	if err != nil {
		return errors.Wrap(err, "update: forward pass")
	}

	var avgs []distribution.Distribution
	if a.config.UseTrustRegion {
		if avgs, err = a.average(window); err != nil {
			return errors.Wrap(err, "update: average policy")
		}
	}

	arch := a.shared.arch
	c := a.config
	grads := a.train.zeroGrads()

	// value returns the state value and action value of transition t
	value := func(t int) (float64, float64) {
		if arch.discrete {
			q := actionvalue.NewDiscrete(outputs[1][t])
			if t == T {
				return q.Expectation(pis[t]), 0
			}
			return q.Expectation(pis[t]), q.Evaluate(window[t].action)
		}
		return outputs[2][t][0], outputs[3][t][0]
	}

	rewards := make([]float64, T)
	values := make([]float64, T)
	actionValues := make([]float64, T)
	rhos := make([]float64, T)
	for t, tr := range window {
		rewards[t] = tr.reward
		values[t], actionValues[t] = value(t)
		rhos[t] = 1.0
		if !online {
			rhos[t] = importanceWeight(pis[t], tr.mu, tr.action)
		}
	}
	bootstrap := 0.0
	if !window[T-1].terminal {
		bootstrap, _ = value(T)
	}
	targets := retrace(rewards, values, actionValues, rhos, bootstrap,
		c.Gamma)

	piLossTotal, qLossTotal := 0.0, 0.0
	for t := T - 1; t >= 0; t-- {
		tr := window[t]
		pi := pis[t]
		v, q, rho, R := values[t], actionValues[t], rhos[t], targets[t]
		advantage := R - v

		// Policy loss
		var piLoss Loss
		if online {
			piLoss = OnPolicyLoss(tr.action, advantage, pi)
		} else {
			piLoss = PolicyGradientLoss(PolicyGradient{
				Action:              tr.action,
				Advantage:           advantage,
				Pi:                  pi,
				Mu:                  tr.mu,
				ActionValue:         a.actionValue(outputs, t, tr, sampled),
				V:                   v,
				TruncationThreshold: a.c,
			})
		}
		var avg distribution.Distribution
		if c.UseTrustRegion {
			avg = avgs[t]
		}
		piLoss, kl := c.policyLoss(piLoss, pi, avg)
		if c.UseTrustRegion {
			a.stats.observeKL(kl)
		}

		// Value losses
		qErr := R - q
		qLoss := 0.5 * c.QLossCoef * qErr * qErr

		if arch.discrete {
			addRow(grads[0], t, piLoss.Grad)
			addAt(grads[1], t, int(tr.action[0]), -c.QLossCoef*qErr)
		} else {
			d := arch.actionDims
			addRow(grads[0], t, piLoss.Grad[:d])
			addRow(grads[1], t, piLoss.Grad[d:])
			addAt(grads[3], t, 0, -c.QLossCoef*qErr)

			vTarget := retraceWeight(rho)*(R-q) + v
			vErr := vTarget - v
			qLoss += 0.5 * c.QLossCoef * vErr * vErr
			addAt(grads[2], t, 0, -c.QLossCoef*vErr)
		}

		piLossTotal += piLoss.Value
		qLossTotal += qLoss
		a.stats.observe(v, pi.Entropy())
	}

	// Backpropagate the loss through the training model
	if err := a.train.setGrads(grads); err != nil {
		return errors.Wrap(err, "update")
	}
	if _, err := a.train.run(); err != nil {
		return errors.Wrap(err, "update: backward pass")
	}
	paramGrads, err := network.Grads(a.train.learnables)
	if err != nil {
		return errors.Wrap(err, "update")
	}

	norm, err := a.shared.params.Update(paramGrads)
	if err != nil {
		return errors.Wrap(err, "update")
	}
	a.stats.observeUpdate(piLossTotal, qLossTotal)

	log.WithFields(logrus.Fields{
		"online":    online,
		"length":    T,
		"pi_loss":   piLossTotal,
		"q_loss":    qLossTotal,
		"grad_norm": norm,
	}).Debug("update")

	if err := a.sync(); err != nil {
		return errors.Wrap(err, "update")
	}
	return nil
}

// actionValue returns the action values of state t of a window used to
// correct the bias of truncated importance sampling
func (a *ACER) actionValue(outputs [][][]float64, t int, tr transition,
	sampled [][]float64) actionvalue.ActionValue {
	if a.shared.arch.discrete {
		return actionvalue.NewDiscrete(outputs[1][t])
	}

	qPair := outputs[3][t]
	taken, policySample := tr.action, sampled[t]
	evaluator := func(action []float64) float64 {
		switch {
		case floats.Equal(action, taken):
			return qPair[0]
		case floats.Equal(action, policySample):
			return qPair[1]
		}
		panic(fmt.Sprintf("actionValue: action %v was not evaluated by the "+
			"stochastic dueling network", action))
	}

	single := actionvalue.NewSingle(evaluator, outputs[2][t][0])
	return actionvalue.NewPresampled(single, policySample, qPair[1])
}
