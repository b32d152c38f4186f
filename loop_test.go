package seqtoseq

import (
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

// A countingGraph is a Graph that records step counts and
// otherwise does as little as possible.
type countingGraph struct {
	creator anyvec.Creator
	rows    int

	batch    int
	retained int

	resets    int
	forwards  int
	backwards int
}

func (c *countingGraph) Reset(batch int) {
	c.batch = batch
	c.retained = 0
	c.resets++
}

func (c *countingGraph) StepForward(in *Tokens, training bool) anyvec.Vector {
	c.forwards++
	if training {
		c.retained++
	}
	return c.creator.MakeVector(c.rows * c.batch)
}

func (c *countingGraph) StepBackward(gold *Tokens, cost anynet.Cost) {
	if c.retained == 0 {
		panic("backward step without matching forward step")
	}
	c.retained--
	c.backwards++
}

func (c *countingGraph) Steps() int                            { return c.retained }
func (c *countingGraph) Parameters() []*anydiff.Var            { return nil }
func (c *countingGraph) Gradient() anydiff.Grad                { return anydiff.Grad{} }
func (c *countingGraph) ClearGradient()                        {}
func (c *countingGraph) WeightNorm() float64                   { return 0 }
func (c *countingGraph) GradientNorm() float64                 { return 0 }
func (c *countingGraph) NumParts() int                         { return 0 }
func (c *countingGraph) ForwardReferenced(i int) bool          { return false }
func (c *countingGraph) Part(i int) anyvec.Vector              { return nil }
func (c *countingGraph) SetPart(i int, v anyvec.Vector)        {}
func (c *countingGraph) StartGrad(i int) anyvec.Vector         { return nil }
func (c *countingGraph) InjectUpstream(i int, v anyvec.Vector) {}

func TestLoopTransitions(t *testing.T) {
	c := anyvec32.CurrentCreator()
	enc := &countingGraph{creator: c, rows: 4}
	dec := &countingGraph{creator: c, rows: 4}
	m := &Model{Encoder: enc, Decoder: dec, creator: c}

	// Two windows: source lengths 2 and 3, target lengths
	// 1 and 2, so 3+4 encoding steps and 2+3 decoding
	// steps in total.
	gen := NewGenerator(
		[][]int{{1, 2}, {1, 2, 3}},
		[][]int{{1}, {2, 3}},
		GenConfig{BatchSize: 1, NumRows: 4},
	)
	Train(m, gen.Steps(), &TrainOptions{
		Cost:  anynet.DotCost{},
		Rater: anysgd.ConstRater(0.1),
	})

	if enc.forwards != 7 {
		t.Errorf("expected 7 encoder steps but got %d", enc.forwards)
	}
	if dec.forwards != 5 {
		t.Errorf("expected 5 decoder steps but got %d", dec.forwards)
	}
	if dec.backwards != dec.forwards {
		t.Errorf("%d decoder backward steps for %d forward steps",
			dec.backwards, dec.forwards)
	}
	if enc.backwards != enc.forwards {
		t.Errorf("%d encoder backward steps for %d forward steps",
			enc.backwards, enc.forwards)
	}
	// One reset per cycle.
	if enc.resets != 2 || dec.resets != 2 {
		t.Errorf("expected 2 resets but got %d and %d", enc.resets, dec.resets)
	}
}

func TestLoopGradCheckEarlyStop(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 5, 3)
	gen := NewGenerator(
		[][]int{{1, 2}, {3}, {4, 1}, {2}},
		[][]int{{2}, {1}, {3}, {4}},
		GenConfig{BatchSize: 1, NumRows: 5},
	)

	var cycles int
	s := gen.Steps()
	Train(m, s, &TrainOptions{
		Cost:      anynet.DotCost{},
		GradCheck: true,
		Tracker:   &NormTracker{},
		StatusFunc: func(n int, meanLoss float64) {
			cycles = n
		},
	})

	if cycles != 0 {
		t.Error("gradient-check mode should not complete an update")
	}
	if _, ok := s.Next(); !ok {
		t.Error("gradient-check mode should stop before the stream ends")
	}
	if m.Decoder.Gradient() == nil {
		t.Error("gradient-check mode should leave the gradient in place")
	}
}

func TestLoopFlushesLastCycle(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 5, 3)
	gen := NewGenerator([][]int{{1, 2}}, [][]int{{3, 4}},
		GenConfig{BatchSize: 1, NumRows: 5})

	var cycles int
	Train(m, gen.Steps(), &TrainOptions{
		Cost:  anynet.DotCost{},
		Rater: anysgd.ConstRater(0.1),
		StatusFunc: func(n int, meanLoss float64) {
			cycles = n
		},
	})
	if cycles != 1 {
		t.Errorf("expected 1 completed cycle but got %d", cycles)
	}
}

func TestLoopClipAndTrack(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 5, 4)
	gen := NewGenerator([][]int{{1, 2, 3}}, [][]int{{4, 3}},
		GenConfig{BatchSize: 1, NumRows: 5})

	tracker := &NormTracker{}
	Train(m, gen.Steps(), &TrainOptions{
		Cost:    anynet.DotCost{},
		Rater:   anysgd.ConstRater(0.01),
		Clip:    1e-6,
		Tracker: tracker,
	})
	if tracker.MaxWeightNorm <= 0 {
		t.Error("tracker saw no weight norm")
	}
	if tracker.MaxGradientNorm <= 0 {
		t.Error("tracker saw no gradient norm")
	}
}

func TestTrainLearns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training in short mode")
	}
	c := anyvec32.CurrentCreator()
	m := NewModel(Config{Creator: c, VocabSize: 4, StateSize: 24})

	// A tiny copy task: the model should drive the loss
	// down within a few epochs.
	source := [][]int{{1, 2}, {2, 1}, {1, 1}, {2, 2}}
	gen := NewGenerator(source, source, GenConfig{
		BatchSize: 4,
		NumRows:   4,
		Dense:     true,
		Creator:   c,
	})
	opts := &TrainOptions{
		Cost:        anynet.DotCost{},
		Rater:       anysgd.ConstRater(0.005),
		Transformer: &anysgd.Adam{},
		Clip:        5,
	}
	first := Train(m, gen.Steps(), opts)
	var last float64
	for i := 0; i < 100; i++ {
		last = Train(m, gen.Steps(), opts)
	}
	if last >= first {
		t.Errorf("loss went from %f to %f", first, last)
	}
}
