package seqtoseq

import (
	"testing"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/serializer"
)

func TestModelBPTTBalance(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 6, 4)
	cost := anynet.DotCost{}

	gen := NewGenerator(
		[][]int{{1, 2, 3}, {4, 5}},
		[][]int{{2, 1}, {3, 3, 4}},
		GenConfig{BatchSize: 2, NumRows: 6},
	)
	s := gen.Steps()
	m.ResetLoss()
	var encSteps, decSteps int
	for {
		step, ok := s.Next()
		if !ok {
			break
		}
		if step.Phase == Encoding {
			if encSteps == 0 {
				m.Reset(2)
			}
			m.EncodeStep(step.Input, true)
			encSteps++
		} else {
			if decSteps == 0 {
				m.BridgeForward()
			}
			m.DecodeStep(step.Input, step.Target, true, cost)
			decSteps++
		}
	}
	if m.Encoder.Steps() != encSteps {
		t.Errorf("encoder retained %d steps after %d forward steps",
			m.Encoder.Steps(), encSteps)
	}
	if m.Decoder.Steps() != decSteps {
		t.Errorf("decoder retained %d steps after %d forward steps",
			m.Decoder.Steps(), decSteps)
	}

	m.Backprop(cost)
	if m.Encoder.Steps() != 0 {
		t.Errorf("encoder step pointer is %d after BPTT", m.Encoder.Steps())
	}
	if m.Decoder.Steps() != 0 {
		t.Errorf("decoder step pointer is %d after BPTT", m.Decoder.Steps())
	}
	if m.Encoder.Gradient() == nil || m.Decoder.Gradient() == nil {
		t.Error("BPTT left no gradient")
	}

	// The cycle is over: Reset must not complain about a
	// lingering gold stack.
	m.Reset(2)
}

func TestModelStepMismatch(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 4, 3)
	cost := anynet.DotCost{}

	m.Reset(1)
	in := NewTokens(4, 1)
	m.EncodeStep(in, true)
	m.BridgeForward()
	// Two decode steps, but only one gold batch on the
	// stack: draining it cannot bring the decoder back to
	// step 0.
	m.DecodeStep(in, in, true, cost)
	m.DecodeStep(in, in, true, cost)
	m.gold = m.gold[:1]

	defer func() {
		if recover() == nil {
			t.Error("expected panic for nonzero decoder step pointer")
		}
	}()
	m.Backprop(cost)
}

func TestBridgeReuse(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 4, 3)
	cost := anynet.DotCost{}

	m.Reset(1)
	in := NewTokens(4, 1)
	m.EncodeStep(in, true)
	m.BridgeForward()
	m.DecodeStep(in, in, true, cost)
	m.Backprop(cost)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for consumed bridge")
		}
	}()
	// Backprop already consumed the cycle's bridge.
	m.bridge.Backward()
}

func TestModelSerialize(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 5, 3)

	data, err := serializer.SerializeAny(m)
	if err != nil {
		t.Fatal(err)
	}
	var m1 *Model
	if err := serializer.DeserializeAny(data, &m1); err != nil {
		t.Fatal(err)
	}

	src := []int{1, 2, 3}
	out := m.Generate(src, 5, 10)
	out1 := m1.Generate(src, 5, 10)
	if len(out) != len(out1) {
		t.Fatalf("expected %v but got %v", out, out1)
	}
	for i, x := range out {
		if out1[i] != x {
			t.Fatalf("expected %v but got %v", out, out1)
		}
	}
}

func TestModelGeneratePolicy(t *testing.T) {
	c := anyvec32.CurrentCreator()
	m := randomizedModel(c, 5, 3)
	out := m.Generate([]int{1, 2}, 5, 7)
	if len(out) > 7 {
		t.Errorf("generated %d tokens with a cap of 7", len(out))
	}
	for _, x := range out {
		if x == Sentinel {
			t.Error("generated output contains the sentinel")
		}
		if x < 0 || x >= 5 {
			t.Errorf("generated token %d out of range", x)
		}
	}
}
