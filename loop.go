package seqtoseq

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
)

// A NormTracker keeps running maxima of the model's
// weight norm and gradient norm across training cycles.
type NormTracker struct {
	MaxWeightNorm   float64
	MaxGradientNorm float64
}

// Update folds one cycle's norms into the maxima.
func (n *NormTracker) Update(weightNorm, gradNorm float64) {
	if weightNorm > n.MaxWeightNorm {
		n.MaxWeightNorm = weightNorm
	}
	if gradNorm > n.MaxGradientNorm {
		n.MaxGradientNorm = gradNorm
	}
}

// TrainOptions configures Train.
type TrainOptions struct {
	// Cost measures the prediction error.
	// A DotCost pairs with the decoder's log-softmax
	// output to give cross-entropy.
	Cost anynet.Cost

	// Rater determines the learning rate, given the number
	// of completed cycles.
	Rater anysgd.Rater

	// Transformer, if non-nil, transforms the gradient
	// before the update (e.g. an *anysgd.Adam).
	Transformer anysgd.Transformer

	// Clip, if non-zero, rescales gradients whose global
	// norm exceeds it down to that norm.
	Clip float64

	// Tracker, if non-nil, records running norm maxima.
	Tracker *NormTracker

	// GradCheck makes Train run exactly one full
	// encode/decode/backpropagate cycle and stop without
	// applying a parameter update, leaving the gradient in
	// place for numerical verification.
	GradCheck bool

	// StatusFunc, if non-nil, is called after every
	// completed cycle with the number of cycles so far and
	// the running mean loss.
	StatusFunc func(cycles int, meanLoss float64)
}

// Train consumes a stream and trains the model on it,
// returning the mean loss over all decoded tokens.
//
// Teacher forcing is implicit in the stream: the decoder
// is always fed the gold previous token.
func Train(m *Model, s *Stream, opts *TrainOptions) float64 {
	return run(m, s, true, opts)
}

// Test consumes a stream and evaluates the model on it,
// returning the mean loss over all decoded tokens.
// No gradients are computed.
func Test(m *Model, s *Stream, cost anynet.Cost) float64 {
	return run(m, s, false, &TrainOptions{Cost: cost})
}

func run(m *Model, s *Stream, training bool, opts *TrainOptions) float64 {
	m.ResetLoss()
	var started, decoded bool
	var cycles int
	for {
		step, ok := s.Next()
		if !ok {
			break
		}
		if step.Phase == Encoding {
			if decoded {
				stop := finalize(m, training, opts, cycles)
				cycles++
				decoded = false
				if stop {
					return m.MeanLoss()
				}
				m.Reset(step.Input.Cols())
			} else if !started {
				m.Reset(step.Input.Cols())
				started = true
			}
			m.EncodeStep(step.Input, training)
		} else {
			if !decoded {
				m.BridgeForward()
				decoded = true
			}
			m.DecodeStep(step.Input, step.Target, training, opts.Cost)
		}
	}
	// Flush the last in-flight cycle even if the stream did
	// not emit a trailing encoding step.
	if decoded {
		finalize(m, training, opts, cycles)
		cycles++
	}
	return m.MeanLoss()
}

// finalize completes one cycle: backpropagation through
// time, optional gradient clipping and norm tracking, and
// the parameter update.
// It reports whether the outer loop should stop.
func finalize(m *Model, training bool, opts *TrainOptions, cycles int) bool {
	if !training {
		return false
	}
	m.Backprop(opts.Cost)

	grad := anydiff.Grad{}
	for v, g := range m.Encoder.Gradient() {
		grad[v] = g
	}
	for v, g := range m.Decoder.Gradient() {
		grad[v] = g
	}

	// The per-step cost upstreams were 1, so dividing by
	// the loss count makes the cycle gradient an average,
	// matching the reported mean loss.
	c := m.creator
	if count := m.CycleLossCount(); count > 0 {
		grad.Scale(c.MakeNumeric(1 / float64(count)))
	}

	var norm float64
	if opts.Clip > 0 || opts.Tracker != nil {
		norm = gradientNorm(grad)
	}
	if opts.Tracker != nil {
		opts.Tracker.Update(m.WeightNorm(), norm)
	}
	if opts.GradCheck {
		return true
	}

	if opts.Clip > 0 && norm > opts.Clip {
		grad.Scale(c.MakeNumeric(opts.Clip / norm))
	}
	if opts.Transformer != nil {
		grad = opts.Transformer.Transform(grad)
	}
	grad.Scale(c.MakeNumeric(-opts.Rater.Rate(float64(cycles))))
	grad.AddToVars()
	m.Encoder.ClearGradient()
	m.Decoder.ClearGradient()

	if opts.StatusFunc != nil {
		opts.StatusFunc(cycles+1, m.MeanLoss())
	}
	return false
}

func gradientNorm(g anydiff.Grad) float64 {
	var sum float64
	for _, v := range g {
		sum += numericFloat(v.Dot(v))
	}
	return math.Sqrt(sum)
}
