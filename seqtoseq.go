// Package seqtoseq trains and runs encoder-decoder
// sequence models in the style of Sutskever et al.,
// "Sequence to Sequence Learning with Neural Networks".
//
// It provides a minibatch generator which turns two
// parallel token corpora into padded, length-sorted,
// reversed input streams, and a model orchestrator which
// drives a pair of recurrent computation graphs through
// encode, decode, and backpropagation-through-time
// cycles.
package seqtoseq

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// A Graph is a stateful, step-oriented recurrent
// computation.
// It consumes one token batch at a time and remembers
// forward activations so that gradients can be computed
// later, in reverse step order.
//
// Two Graphs (an encoder and a decoder) are orchestrated
// by a Model.
type Graph interface {
	// Reset returns the graph to its pre-sequence state
	// for the given batch size, discarding any retained
	// activations and pending state gradients.
	Reset(batch int)

	// StepForward feeds one token batch through the graph
	// and returns the output batch.
	// If training is true, the activations for the step
	// are retained for a later StepBackward.
	//
	// The returned vector belongs to the graph and is only
	// valid until the next call.
	StepForward(in *Tokens, training bool) anyvec.Vector

	// StepBackward pops the most recently retained forward
	// step and accumulates its gradient.
	// If gold is non-nil, the cost of the step's output
	// against gold is included; a nil gold propagates only
	// the pending recurrent state gradient, which is how
	// an encoder is stepped backward.
	StepBackward(gold *Tokens, cost anynet.Cost)

	// Steps returns the number of retained forward steps
	// which have not been matched by a backward step.
	// It must be exactly 0 once backpropagation through a
	// full sequence has finished.
	Steps() int

	// Parameters returns the learnable variables in a
	// fixed order.
	Parameters() []*anydiff.Var

	// Gradient returns the gradient accumulated by
	// backward steps since the last ClearGradient.
	// It is nil if no backward step has run.
	Gradient() anydiff.Grad

	// ClearGradient discards the accumulated gradient.
	ClearGradient()

	// WeightNorm returns the Euclidean norm of the
	// graph's parameters.
	WeightNorm() float64

	// GradientNorm returns the Euclidean norm of the
	// accumulated gradient, or 0 if there is none.
	GradientNorm() float64

	// NumParts returns the number of internal recurrent
	// state parts.
	NumParts() int

	// ForwardReferenced reports whether state part i must
	// be carried across the encoder-decoder boundary.
	ForwardReferenced(i int) bool

	// Part returns the current storage for state part i.
	// The storage is aliased, not copied; see Bridge for
	// the lifetime contract.
	Part(i int) anyvec.Vector

	// SetPart installs storage for state part i, replacing
	// the graph's own initial state.
	SetPart(i int, v anyvec.Vector)

	// StartGrad returns the gradient with respect to the
	// initial value of state part i, available once all
	// retained steps have been stepped backward.
	StartGrad(i int) anyvec.Vector

	// InjectUpstream adds an upstream gradient for state
	// part i, to be consumed by the next StepBackward.
	InjectUpstream(i int, v anyvec.Vector)
}

// A Cell is the recurrent core shared (as a template, not
// as an object) by the encoder and the decoder.
// A Cell maps a batch of previous state parts and a batch
// of inputs to new state parts and an output.
type Cell interface {
	// StateSizes returns the per-sequence size of each
	// recurrent state part.
	StateSizes() []int

	// Start returns the variables holding the initial
	// value of each state part, in the same order as
	// StateSizes.
	Start() []*anydiff.Var

	// Step applies the cell for one timestep.
	// Each part and the input are packed batches of n
	// sequences.
	// The returned parts must line up with StateSizes.
	Step(parts []anydiff.Res, in anydiff.Res, n int) (out anydiff.Res, newParts []anydiff.Res)

	// Parameters returns the learnable variables,
	// including the start state.
	Parameters() []*anydiff.Var
}

// A CellFactory creates an independently parameterized
// Cell from the shared configuration.
// It is invoked twice per Model: once for the encoder and
// once for the decoder.
type CellFactory func(c anyvec.Creator, in, state int) Cell

func numericFloat(num anyvec.Numeric) float64 {
	switch num := num.(type) {
	case float32:
		return float64(num)
	case float64:
		return num
	default:
		return 0
	}
}

func vectorSum(v anyvec.Vector) float64 {
	return numericFloat(anyvec.Sum(v))
}

func vectorData(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return append([]float64{}, data...)
	default:
		panic("unsupported numeric type")
	}
}
