package acer

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	env "github.com/samuelfneumann/goacer/environment"
	"github.com/samuelfneumann/goacer/network"
)

// minStd is added to the predicted standard deviation of Gaussian
// policies
const minStd = 1e-3

// architecture describes the networks of an ACER agent in an
// environment
type architecture struct {
	features int

	discrete   bool
	numActions int // Discrete actions only
	actionDims int // Continuous actions only

	// Continuous action bounds, used to squash the mean of the policy
	low, high []float64

	nSDNSamples int

	recurrent  bool
	hiddenSize int

	layers      []int
	activations []*network.Activation
	init        G.InitWFn
}

// newArchitecture returns the architecture of the networks described
// by the Config in the environment
func newArchitecture(e env.Environment, c Config) (architecture, error) {
	obs := e.ObservationSpec()
	action := e.ActionSpec()

	a := architecture{
		features:    obs.Dims(),
		nSDNSamples: c.NSDNSamples,
		recurrent:   c.Recurrent,
		hiddenSize:  c.HiddenSize,
		layers:      c.Layers,
		activations: c.Activations,
		init:        c.InitWFn.InitWFn(),
	}

	switch action.Cardinality {
	case env.Discrete:
		n, err := action.NumActions()
		if err != nil {
			return architecture{}, fmt.Errorf("newArchitecture: %v", err)
		}
		a.discrete = true
		a.numActions = n

	case env.Continuous:
		a.actionDims = action.Dims()
		for _, b := range action.Bounds() {
			if b.Max <= b.Min {
				return architecture{}, fmt.Errorf("newArchitecture: "+
					"continuous actions must have bounded, non-empty "+
					"ranges \n\thave([%v, %v])", b.Min, b.Max)
			}
			a.low = append(a.low, b.Min)
			a.high = append(a.high, b.Max)
		}

	default:
		return architecture{}, fmt.Errorf("newArchitecture: unknown "+
			"action cardinality %v", action.Cardinality)
	}

	return a, nil
}

// sdnSamples returns the number of actions evaluated by the stochastic
// dueling network in each state: the selected action, one action
// sampled from the policy, and NSDNSamples actions to estimate the
// expected advantage
func (a architecture) sdnSamples() int {
	return a.nSDNSamples + 2
}

// model is a policy and action-value network in its own computational
// graph, unrolled over rows states.
//
// Discrete action models predict the logits of a softmax policy and
// the action value of each action. Continuous action models predict
// the mean and standard deviation of a Gaussian policy, the state
// value, and use a stochastic dueling network to predict the action
// values of the actions in the actions input.
//
// Training models compute gradients through a surrogate cost. For each
// head, a gradient input node of the same shape holds the gradient of
// the loss with respect to the head, and the cost is the sum of each
// head multiplied elementwise by its gradient input. Backpropagating
// the cost then computes the gradient of the loss with respect to the
// learnables.
type model struct {
	arch architecture
	rows int

	g         *G.ExprGraph
	obs       *G.Node
	recurrent *network.Recurrent

	// Discrete heads
	logits, q *G.Node

	// Continuous heads and the actions evaluated by the dueling network
	mean, std, v, qPair *G.Node
	actions             *G.Node

	heads      []*G.Node
	headVals   []G.Value
	gradInputs []*G.Node

	learnables G.Nodes
	vm         G.VM
}

// newModel returns a new model with rows input states. If train is
// true, the model computes gradients of its learnables.
func newModel(a architecture, rows int, train bool,
	name string) (*model, error) {
	g := G.NewGraph()
	m := &model{
		arch: a,
		rows: rows,
		g:    g,
		obs: G.NewMatrix(g, tensor.Float64, G.WithShape(rows, a.features),
			G.WithName(name+"Obs"), G.WithInit(G.Zeroes())),
	}

	features := m.obs
	if a.recurrent {
		var err error
		m.recurrent, err = network.NewRecurrent(m.obs, a.hiddenSize, a.init,
			name+"RNN")
		if err != nil {
			return nil, errors.Wrap(err, "newModel")
		}
		features = m.recurrent.Prediction()
		m.learnables = append(m.learnables, m.recurrent.Learnables()...)
	}

	var err error
	if a.discrete {
		err = m.discreteHeads(features, name)
	} else {
		err = m.continuousHeads(features, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "newModel")
	}

	m.headVals = make([]G.Value, len(m.heads))
	for i := range m.heads {
		G.Read(m.heads[i], &m.headVals[i])
	}

	if !train {
		m.vm = G.NewTapeMachine(g)
		return m, nil
	}

	// Surrogate cost Σ head ⊙ ∂L/∂head
	var cost *G.Node
	m.gradInputs = make([]*G.Node, len(m.heads))
	for i, head := range m.heads {
		m.gradInputs[i] = G.NewMatrix(g, tensor.Float64,
			G.WithShape(head.Shape()...),
			G.WithName(fmt.Sprintf("%vGrad%d", name, i)),
			G.WithInit(G.Zeroes()))

		prod, err := G.HadamardProd(head, m.gradInputs[i])
		if err != nil {
			return nil, errors.Wrap(err, "newModel: could not compute cost")
		}
		sum, err := G.Sum(prod)
		if err != nil {
			return nil, errors.Wrap(err, "newModel: could not compute cost")
		}

		if cost == nil {
			cost = sum
		} else if cost, err = G.Add(cost, sum); err != nil {
			return nil, errors.Wrap(err, "newModel: could not compute cost")
		}
	}

	if _, err := G.Grad(cost, m.learnables...); err != nil {
		return nil, errors.Wrap(err, "newModel: could not compute gradient")
	}
	m.vm = G.NewTapeMachine(g, G.BindDualValues(m.learnables...))

	return m, nil
}

func (m *model) hidden() ([]int, []bool, []*network.Activation) {
	biases := make([]bool, len(m.arch.layers))
	for i := range biases {
		biases[i] = true
	}
	return m.arch.layers, biases, m.arch.activations
}

// discreteHeads adds the softmax policy logits and action value heads
func (m *model) discreteHeads(features *G.Node, name string) error {
	layers, biases, acts := m.hidden()

	policy, err := network.NewMLP(features, m.arch.numActions, layers,
		biases, acts, m.arch.init, name+"Pi")
	if err != nil {
		return fmt.Errorf("discreteHeads: could not create policy: %v", err)
	}
	q, err := network.NewMLP(features, m.arch.numActions, layers, biases,
		acts, m.arch.init, name+"Q")
	if err != nil {
		return fmt.Errorf("discreteHeads: could not create action "+
			"values: %v", err)
	}

	m.logits = policy.Prediction()
	m.q = q.Prediction()
	m.heads = []*G.Node{m.logits, m.q}
	m.learnables = append(m.learnables, policy.Learnables()...)
	m.learnables = append(m.learnables, q.Learnables()...)

	return nil
}

// constant returns a constant node of shape (rows, cols) with each row
// equal to row
func constant(rows, cols int, row []float64, name string) *G.Node {
	backing := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		backing = append(backing, row...)
	}
	return G.NewConstant(tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(backing),
	), G.WithName(name))
}

// continuousHeads adds the Gaussian policy, state value, and
// stochastic dueling network heads
func (m *model) continuousHeads(features *G.Node, name string) error {
	layers, biases, acts := m.hidden()
	d := m.arch.actionDims

	// Policy: mean and log standard deviation leaves on a shared root
	policy, err := network.NewTreeMLP(features, layers, biases, acts,
		[]int{d, d}, [][]int{{}, {}}, [][]bool{{}, {}},
		[][]*network.Activation{{}, {}}, m.arch.init, name+"Pi")
	if err != nil {
		return fmt.Errorf("continuousHeads: could not create policy: %v",
			err)
	}
	m.learnables = append(m.learnables, policy.Learnables()...)

	// Squash the mean into the action bounds
	mid := make([]float64, d)
	half := make([]float64, d)
	for i := range mid {
		mid[i] = (m.arch.high[i] + m.arch.low[i]) / 2
		half[i] = (m.arch.high[i] - m.arch.low[i]) / 2
	}
	squashed, err := G.Tanh(policy.Prediction()[0])
	if err != nil {
		return err
	}
	if squashed, err = G.HadamardProd(squashed,
		constant(m.rows, d, half, name+"HalfRange")); err != nil {
		return err
	}
	if m.mean, err = G.Add(squashed,
		constant(m.rows, d, mid, name+"Mid")); err != nil {
		return err
	}

	minStds := make([]float64, d)
	for i := range minStds {
		minStds[i] = minStd
	}
	std, err := G.Exp(policy.Prediction()[1])
	if err != nil {
		return err
	}
	if m.std, err = G.Add(std,
		constant(m.rows, d, minStds, name+"MinStd")); err != nil {
		return err
	}

	// State value
	v, err := network.NewMLP(features, 1, layers, biases, acts,
		m.arch.init, name+"V")
	if err != nil {
		return fmt.Errorf("continuousHeads: could not create state "+
			"value: %v", err)
	}
	m.v = v.Prediction()
	m.learnables = append(m.learnables, v.Learnables()...)

	if err := m.sdn(features, name); err != nil {
		return fmt.Errorf("continuousHeads: could not create stochastic "+
			"dueling network: %v", err)
	}

	m.heads = []*G.Node{m.mean, m.std, m.v, m.qPair}
	return nil
}

// sdn adds a stochastic dueling network which predicts
//
//	Q(s, a) = V(s) + A(s, a) - 1/n Σ_i A(s, u_i),    u_i ~ π
//
// for the action a_t taken in state s_t and an action a'_t sampled
// from π in the same state. The actions input holds, for each state t,
// the row block [a_t, a'_t, u_1, ..., u_n]. The prediction qPair holds
// Q(s_t, a_t) in column 0 and Q(s_t, a'_t) in column 1.
func (m *model) sdn(features *G.Node, name string) error {
	s := m.arch.sdnSamples()
	n := m.arch.nSDNSamples
	d := m.arch.actionDims
	layers, biases, acts := m.hidden()

	m.actions = G.NewMatrix(m.g, tensor.Float64, G.WithShape(m.rows*s, d),
		G.WithName(name+"Actions"), G.WithInit(G.Zeroes()))

	// Repeat the features of each state once per evaluated action
	rep := make([]float64, m.rows*s*m.rows)
	for t := 0; t < m.rows; t++ {
		for i := 0; i < s; i++ {
			rep[(t*s+i)*m.rows+t] = 1
		}
	}
	repeat := G.NewConstant(tensor.New(
		tensor.WithShape(m.rows*s, m.rows),
		tensor.WithBacking(rep),
	), G.WithName(name+"Repeat"))

	repeated, err := G.Mul(repeat, features)
	if err != nil {
		return err
	}
	input, err := G.Concat(1, repeated, m.actions)
	if err != nil {
		return err
	}

	advantage, err := network.NewMLP(input, 1, layers, biases, acts,
		m.arch.init, name+"Adv")
	if err != nil {
		return err
	}
	m.learnables = append(m.learnables, advantage.Learnables()...)

	adv, err := G.Reshape(advantage.Prediction(), tensor.Shape{m.rows, s})
	if err != nil {
		return err
	}

	// Column 0: A(a_t) - mean(A(u)), column 1: A(a'_t) - mean(A(u))
	w := make([]float64, s*2)
	w[0*2+0] = 1
	w[1*2+1] = 1
	for i := 2; i < s; i++ {
		w[i*2+0] = -1 / float64(n)
		w[i*2+1] = -1 / float64(n)
	}
	weights := G.NewConstant(tensor.New(
		tensor.WithShape(s, 2),
		tensor.WithBacking(w),
	), G.WithName(name+"SDNWeights"))

	centered, err := G.Mul(adv, weights)
	if err != nil {
		return err
	}

	ones := G.NewConstant(tensor.New(
		tensor.WithShape(1, 2),
		tensor.WithBacking([]float64{1, 1}),
	), G.WithName(name+"Ones"))
	vs, err := G.Mul(m.v, ones)
	if err != nil {
		return err
	}

	m.qPair, err = G.Add(centered, vs)
	return err
}

// setObs sets the observations of each row. Rows without an
// observation are set to zero.
func (m *model) setObs(obs [][]float64) error {
	if len(obs) > m.rows {
		return fmt.Errorf("setObs: too many observations \n\twant(<= %v) "+
			"\n\thave(%v)", m.rows, len(obs))
	}

	backing := make([]float64, m.rows*m.arch.features)
	for t, o := range obs {
		if len(o) != m.arch.features {
			return fmt.Errorf("setObs: invalid observation size "+
				"\n\twant(%v) \n\thave(%v)", m.arch.features, len(o))
		}
		copy(backing[t*m.arch.features:], o)
	}

	return G.Let(m.obs, tensor.New(
		tensor.WithShape(m.rows, m.arch.features),
		tensor.WithBacking(backing),
	))
}

// setHidden sets the hidden state of the recurrent layer before the
// first row
func (m *model) setHidden(hidden []float64) error {
	if m.recurrent == nil {
		return nil
	}
	return m.recurrent.SetHidden(hidden)
}

// hiddenAt returns the hidden state of the recurrent layer after
// consuming row t
func (m *model) hiddenAt(t int) []float64 {
	if m.recurrent == nil {
		return nil
	}
	return m.recurrent.Hidden()[t]
}

// setActions sets the actions evaluated by the stochastic dueling
// network. Row t of actions holds the actions evaluated in state t.
func (m *model) setActions(actions [][][]float64) error {
	s := m.arch.sdnSamples()
	d := m.arch.actionDims

	backing := make([]float64, m.rows*s*d)
	for t := range actions {
		if len(actions[t]) != s {
			return fmt.Errorf("setActions: invalid number of actions in "+
				"row %v \n\twant(%v) \n\thave(%v)", t, s, len(actions[t]))
		}
		for i, a := range actions[t] {
			copy(backing[(t*s+i)*d:(t*s+i+1)*d], a)
		}
	}

	return G.Let(m.actions, tensor.New(
		tensor.WithShape(m.rows*s, d),
		tensor.WithBacking(backing),
	))
}

// setGrads sets the gradient of the loss with respect to each head
func (m *model) setGrads(grads []*tensor.Dense) error {
	if len(grads) != len(m.gradInputs) {
		return fmt.Errorf("setGrads: invalid number of gradients "+
			"\n\twant(%v) \n\thave(%v)", len(m.gradInputs), len(grads))
	}
	for i := range grads {
		if err := G.Let(m.gradInputs[i], grads[i]); err != nil {
			return fmt.Errorf("setGrads: %v", err)
		}
	}
	return nil
}

// zeroGrads returns zeroed gradients for each head
func (m *model) zeroGrads() []*tensor.Dense {
	grads := make([]*tensor.Dense, len(m.heads))
	for i, head := range m.heads {
		grads[i] = tensor.New(tensor.WithShape(head.Shape()...),
			tensor.Of(tensor.Float64))
	}
	return grads
}

// run runs the forward pass, and the backward pass for training
// models, and returns the value of each head as rows of values
func (m *model) run() ([][][]float64, error) {
	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("run: %v", err)
	}

	outputs := make([][][]float64, len(m.heads))
	for i, val := range m.headVals {
		cols := m.heads[i].Shape()[1]
		data := val.Data().([]float64)

		outputs[i] = make([][]float64, m.rows)
		for t := range outputs[i] {
			outputs[i][t] = make([]float64, cols)
			copy(outputs[i][t], data[t*cols:(t+1)*cols])
		}
	}
	return outputs, nil
}

// Close releases the resources of the model's VM
func (m *model) Close() error {
	return m.vm.Close()
}
