package seqtoseq

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// A Net is a Graph which drives a Cell one timestep at a
// time, optionally followed by an output head.
//
// During training, each forward step records the pooled
// state variables and result nodes needed to run the
// matching backward step later.
type Net struct {
	Cell Cell

	// Head, if non-nil, is applied to the cell's output at
	// every step.
	// A decoder uses this for its output projection and
	// normalization stage.
	Head anynet.Layer

	creator anyvec.Creator
	batch   int

	parts    []anyvec.Vector
	tape     []*netStep
	upstream []anyvec.Vector
	grad     anydiff.Grad

	// bridgedIn is set when the initial state was
	// installed from outside via SetPart.
	// In that case the gradient for the initial state is
	// held for StartGrad instead of being propagated into
	// the cell's own start variables.
	bridgedIn bool
}

type netStep struct {
	pools []*anydiff.Var
	parts []anydiff.Res
	out   anydiff.Res
}

// NewNet creates a Net around a cell and an optional
// head.
func NewNet(cell Cell, head anynet.Layer) *Net {
	return &Net{
		Cell:    cell,
		Head:    head,
		creator: cell.Start()[0].Vector.Creator(),
	}
}

// Reset returns the net to its pre-sequence state for a
// batch of the given size.
func (n *Net) Reset(batch int) {
	n.batch = batch
	starts := n.Cell.Start()
	n.parts = make([]anyvec.Vector, len(starts))
	for i, v := range starts {
		rep := n.creator.MakeVector(v.Vector.Len() * batch)
		anyvec.AddRepeated(rep, v.Vector)
		n.parts[i] = rep
	}
	n.tape = nil
	n.upstream = make([]anyvec.Vector, len(starts))
	n.bridgedIn = false
}

// StepForward feeds one token batch through the net.
func (n *Net) StepForward(in *Tokens, training bool) anyvec.Vector {
	if n.parts == nil {
		panic("net used before Reset")
	}
	iv := in.Dense(n.creator)
	if training && iv == in.dense {
		// The producer reuses this storage; the retained
		// activations need their own copy.
		iv = iv.Copy()
	}
	inRes := anydiff.NewConst(iv)

	pools := make([]*anydiff.Var, len(n.parts))
	poolReses := make([]anydiff.Res, len(n.parts))
	for i, p := range n.parts {
		pools[i] = anydiff.NewVar(p)
		poolReses[i] = pools[i]
	}

	out, newParts := n.Cell.Step(poolReses, inRes, n.batch)
	if n.Head != nil {
		out = n.Head.Apply(out, n.batch)
	}
	for i, p := range newParts {
		n.parts[i] = p.Output()
	}
	if training {
		n.tape = append(n.tape, &netStep{pools: pools, parts: newParts, out: out})
	}
	return out.Output()
}

// StepBackward pops the most recent retained forward step
// and accumulates its gradient.
//
// A non-nil gold adds the cost of the step's output
// against gold.
// Pending state gradients from later steps (or from
// InjectUpstream) are propagated as well, and the
// resulting gradient for the previous step's state is
// left pending.
//
// When the last retained step is consumed, the remaining
// state gradient is propagated into the cell's start
// variables, unless the initial state was bridged in.
func (n *Net) StepBackward(gold *Tokens, cost anynet.Cost) {
	if len(n.tape) == 0 {
		panic("backward step without matching forward step")
	}
	rec := n.tape[len(n.tape)-1]
	n.tape = n.tape[:len(n.tape)-1]
	if n.grad == nil {
		n.grad = anydiff.NewGrad(n.Parameters()...)
	}

	for _, p := range rec.pools {
		n.grad[p] = n.creator.MakeVector(p.Vector.Len())
	}
	if gold != nil {
		c := cost.Cost(anydiff.NewConst(gold.Dense(n.creator)), rec.out, n.batch)
		u := n.creator.MakeVector(c.Output().Len())
		u.AddScalar(n.creator.MakeNumeric(1))
		c.Propagate(u, n.grad)
	}
	for i, p := range rec.parts {
		if n.upstream[i] != nil {
			p.Propagate(n.upstream[i], n.grad)
		}
	}
	for i, p := range rec.pools {
		n.upstream[i] = n.grad[p]
		delete(n.grad, p)
	}

	if len(n.tape) == 0 && !n.bridgedIn {
		n.propagateStart()
	}
}

// propagateStart folds the pending initial-state gradient
// into the cell's start variables.
func (n *Net) propagateStart() {
	for i, v := range n.Cell.Start() {
		u := n.upstream[i]
		if u == nil {
			continue
		}
		if dest, ok := n.grad[v]; ok {
			dest.Add(anyvec.SumRows(u, v.Vector.Len()))
		}
		n.upstream[i] = nil
	}
}

// Steps returns the number of retained forward steps not
// yet matched by a backward step.
func (n *Net) Steps() int {
	return len(n.tape)
}

// Parameters returns the parameters of the cell and the
// head.
func (n *Net) Parameters() []*anydiff.Var {
	res := n.Cell.Parameters()
	if p, ok := n.Head.(anynet.Parameterizer); ok {
		res = append(res, p.Parameters()...)
	}
	return res
}

// Gradient returns the accumulated gradient, or nil if no
// backward step has run since the last ClearGradient.
func (n *Net) Gradient() anydiff.Grad {
	return n.grad
}

// ClearGradient discards the accumulated gradient.
func (n *Net) ClearGradient() {
	n.grad = nil
}

// WeightNorm returns the Euclidean norm of the net's
// parameters.
func (n *Net) WeightNorm() float64 {
	var sum float64
	for _, p := range n.Parameters() {
		sum += numericFloat(p.Vector.Dot(p.Vector))
	}
	return math.Sqrt(sum)
}

// GradientNorm returns the Euclidean norm of the
// accumulated gradient.
func (n *Net) GradientNorm() float64 {
	var sum float64
	for _, v := range n.grad {
		sum += numericFloat(v.Dot(v))
	}
	return math.Sqrt(sum)
}

// NumParts returns the number of recurrent state parts.
func (n *Net) NumParts() int {
	return len(n.Cell.StateSizes())
}

// ForwardReferenced reports whether state part i is
// carried across the encoder-decoder boundary.
// Every recurrent part is; the head keeps no state.
func (n *Net) ForwardReferenced(i int) bool {
	return true
}

// Part returns the current storage for state part i.
func (n *Net) Part(i int) anyvec.Vector {
	return n.parts[i]
}

// SetPart installs shared storage for state part i.
func (n *Net) SetPart(i int, v anyvec.Vector) {
	n.parts[i] = v
	n.bridgedIn = true
}

// StartGrad returns the pending gradient for the initial
// value of state part i.
func (n *Net) StartGrad(i int) anyvec.Vector {
	return n.upstream[i]
}

// InjectUpstream adds an upstream gradient for state part
// i, to be consumed by the next StepBackward.
func (n *Net) InjectUpstream(i int, v anyvec.Vector) {
	if n.upstream[i] != nil {
		n.upstream[i].Add(v)
	} else {
		n.upstream[i] = v
	}
}
