package agent

import (
	"fmt"
	"math"
	"math/rand"
)

// ValueNetwork is the Q-value approximator: a fully-connected
// Linear -> ReLU -> Linear stack mapping a state vector to one
// estimated value per backend action.
type ValueNetwork struct {
	StateDim  int         `json:"state_dim"`
	HiddenDim int         `json:"hidden_dim"`
	ActionDim int         `json:"action_dim"`
	W1        [][]float64 `json:"w1"` // hidden x state
	B1        []float64   `json:"b1"`
	W2        [][]float64 `json:"w2"` // action x hidden
	B2        []float64   `json:"b2"`
}

// NewValueNetwork builds a network with He-initialized weights drawn
// from |rng|.
func NewValueNetwork(stateDim, hiddenDim, actionDim int, rng *rand.Rand) *ValueNetwork {
	n := &ValueNetwork{
		StateDim:  stateDim,
		HiddenDim: hiddenDim,
		ActionDim: actionDim,
		W1:        make([][]float64, hiddenDim),
		B1:        make([]float64, hiddenDim),
		W2:        make([][]float64, actionDim),
		B2:        make([]float64, actionDim),
	}

	scale1 := math.Sqrt(2.0 / float64(stateDim))
	for j := range n.W1 {
		n.W1[j] = make([]float64, stateDim)
		for i := range n.W1[j] {
			n.W1[j][i] = rng.NormFloat64() * scale1
		}
	}
	scale2 := math.Sqrt(2.0 / float64(hiddenDim))
	for a := range n.W2 {
		n.W2[a] = make([]float64, hiddenDim)
		for j := range n.W2[a] {
			n.W2[a][j] = rng.NormFloat64() * scale2
		}
	}
	return n
}

// Forward returns the estimated value of every action in |state|.
func (n *ValueNetwork) Forward(state []float64) []float64 {
	_, out := n.forward(state)
	return out
}

// forward also exposes the hidden activations for the backward pass.
func (n *ValueNetwork) forward(state []float64) (hidden []float64, out []float64) {
	hidden = make([]float64, n.HiddenDim)
	for j := 0; j < n.HiddenDim; j++ {
		sum := n.B1[j]
		row := n.W1[j]
		for i := 0; i < n.StateDim; i++ {
			sum += row[i] * state[i]
		}
		if sum > 0 {
			hidden[j] = sum
		}
	}

	out = make([]float64, n.ActionDim)
	for a := 0; a < n.ActionDim; a++ {
		sum := n.B2[a]
		row := n.W2[a]
		for j := 0; j < n.HiddenDim; j++ {
			sum += row[j] * hidden[j]
		}
		out[a] = sum
	}
	return hidden, out
}

// ArgMax returns the action with the highest estimated value; ties
// break toward the lower index so greedy selection is deterministic.
func ArgMax(values []float64) int {
	best := 0
	for a := 1; a < len(values); a++ {
		if values[a] > values[best] {
			best = a
		}
	}
	return best
}

// Clone returns a deep copy, used for the target network.
func (n *ValueNetwork) Clone() *ValueNetwork {
	c := &ValueNetwork{
		StateDim:  n.StateDim,
		HiddenDim: n.HiddenDim,
		ActionDim: n.ActionDim,
		W1:        make([][]float64, n.HiddenDim),
		B1:        append([]float64(nil), n.B1...),
		W2:        make([][]float64, n.ActionDim),
		B2:        append([]float64(nil), n.B2...),
	}
	for j := range n.W1 {
		c.W1[j] = append([]float64(nil), n.W1[j]...)
	}
	for a := range n.W2 {
		c.W2[a] = append([]float64(nil), n.W2[a]...)
	}
	return c
}

// CopyFrom overwrites this network's parameters with |src|'s.
func (n *ValueNetwork) CopyFrom(src *ValueNetwork) {
	for j := range n.W1 {
		copy(n.W1[j], src.W1[j])
	}
	copy(n.B1, src.B1)
	for a := range n.W2 {
		copy(n.W2[a], src.W2[a])
	}
	copy(n.B2, src.B2)
}

func (n *ValueNetwork) validate(stateDim, hiddenDim, actionDim int) error {
	if n.StateDim != stateDim || n.HiddenDim != hiddenDim || n.ActionDim != actionDim {
		return fmt.Errorf("network shape %dx%dx%d does not match configured %dx%dx%d",
			n.StateDim, n.HiddenDim, n.ActionDim, stateDim, hiddenDim, actionDim)
	}
	if len(n.W1) != hiddenDim || len(n.B1) != hiddenDim || len(n.W2) != actionDim || len(n.B2) != actionDim {
		return fmt.Errorf("network parameter arrays are inconsistent with declared shape")
	}
	return nil
}

// gradients accumulates one mini-batch of parameter gradients.
type gradients struct {
	w1 [][]float64
	b1 []float64
	w2 [][]float64
	b2 []float64
}

func newGradients(n *ValueNetwork) *gradients {
	g := &gradients{
		w1: make([][]float64, n.HiddenDim),
		b1: make([]float64, n.HiddenDim),
		w2: make([][]float64, n.ActionDim),
		b2: make([]float64, n.ActionDim),
	}
	for j := range g.w1 {
		g.w1[j] = make([]float64, n.StateDim)
	}
	for a := range g.w2 {
		g.w2[a] = make([]float64, n.HiddenDim)
	}
	return g
}

// accumulate adds the gradient of the squared error on the value of
// |action| in |state| against |target|. Returns that sample's
// squared error.
func (n *ValueNetwork) accumulate(g *gradients, state []float64, action int, target float64, scale float64) float64 {
	hidden, out := n.forward(state)

	diff := out[action] - target
	// d(loss)/d(q) for MSE over the batch.
	dOut := 2.0 * diff * scale

	g.b2[action] += dOut
	for j := 0; j < n.HiddenDim; j++ {
		g.w2[action][j] += dOut * hidden[j]
	}

	for j := 0; j < n.HiddenDim; j++ {
		if hidden[j] <= 0 {
			continue // ReLU gate
		}
		dHidden := dOut * n.W2[action][j]
		g.b1[j] += dHidden
		for i := 0; i < n.StateDim; i++ {
			g.w1[j][i] += dHidden * state[i]
		}
	}
	return diff * diff
}

// clip rescales the gradients so their global L2 norm is at most
// |maxNorm|, matching the original training setup.
func (g *gradients) clip(maxNorm float64) {
	sum := 0.0
	for j := range g.w1 {
		for _, v := range g.w1[j] {
			sum += v * v
		}
	}
	for _, v := range g.b1 {
		sum += v * v
	}
	for a := range g.w2 {
		for _, v := range g.w2[a] {
			sum += v * v
		}
	}
	for _, v := range g.b2 {
		sum += v * v
	}

	norm := math.Sqrt(sum)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for j := range g.w1 {
		for i := range g.w1[j] {
			g.w1[j][i] *= scale
		}
	}
	for j := range g.b1 {
		g.b1[j] *= scale
	}
	for a := range g.w2 {
		for j := range g.w2[a] {
			g.w2[a][j] *= scale
		}
	}
	for a := range g.b2 {
		g.b2[a] *= scale
	}
}

// adam is the Adam optimizer state for one ValueNetwork.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int

	mW1, vW1 [][]float64
	mB1, vB1 []float64
	mW2, vW2 [][]float64
	mB2, vB2 []float64
}

func newAdam(n *ValueNetwork, lr float64) *adam {
	mk := func(rows, cols int) [][]float64 {
		m := make([][]float64, rows)
		for i := range m {
			m[i] = make([]float64, cols)
		}
		return m
	}
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		mW1:   mk(n.HiddenDim, n.StateDim),
		vW1:   mk(n.HiddenDim, n.StateDim),
		mB1:   make([]float64, n.HiddenDim),
		vB1:   make([]float64, n.HiddenDim),
		mW2:   mk(n.ActionDim, n.HiddenDim),
		vW2:   mk(n.ActionDim, n.HiddenDim),
		mB2:   make([]float64, n.ActionDim),
		vB2:   make([]float64, n.ActionDim),
	}
}

func (o *adam) step(n *ValueNetwork, g *gradients) {
	o.t++
	bc1 := 1.0 - math.Pow(o.beta1, float64(o.t))
	bc2 := 1.0 - math.Pow(o.beta2, float64(o.t))

	update := func(p *float64, grad float64, m *float64, v *float64) {
		*m = o.beta1*(*m) + (1.0-o.beta1)*grad
		*v = o.beta2*(*v) + (1.0-o.beta2)*grad*grad
		mHat := *m / bc1
		vHat := *v / bc2
		*p -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
	}

	for j := range n.W1 {
		for i := range n.W1[j] {
			update(&n.W1[j][i], g.w1[j][i], &o.mW1[j][i], &o.vW1[j][i])
		}
		update(&n.B1[j], g.b1[j], &o.mB1[j], &o.vB1[j])
	}
	for a := range n.W2 {
		for j := range n.W2[a] {
			update(&n.W2[a][j], g.w2[a][j], &o.mW2[a][j], &o.vW2[a][j])
		}
		update(&n.B2[a], g.b2[a], &o.mB2[a], &o.vB2[a])
	}
}
