package seqtoseq

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

func init() {
	var v VanillaCell
	serializer.RegisterTypedDeserializer(v.SerializerType(), DeserializeVanillaCell)
}

// VanillaCell is a standard RNN cell with one state part:
//
//	h' := s(Ws*h + Wi*input + b)
//
// where s is a squashing function.
// The cell's output is its new hidden state.
type VanillaCell struct {
	InCount   int
	StateSize int

	StateWeights *anydiff.Var
	InputWeights *anydiff.Var
	Biases       *anydiff.Var
	StartState   *anydiff.Var
	Activation   anynet.Layer
}

// NewVanillaCell creates a randomized VanillaCell with a
// tanh squashing function.
func NewVanillaCell(c anyvec.Creator, in, state int) Cell {
	res := &VanillaCell{
		InCount:      in,
		StateSize:    state,
		StateWeights: anydiff.NewVar(c.MakeVector(state * state)),
		InputWeights: anydiff.NewVar(c.MakeVector(in * state)),
		Biases:       anydiff.NewVar(c.MakeVector(state)),
		StartState:   anydiff.NewVar(c.MakeVector(state)),
		Activation:   anynet.Tanh,
	}
	anyvec.Rand(res.StateWeights.Vector, anyvec.Normal, nil)
	anyvec.Rand(res.InputWeights.Vector, anyvec.Normal, nil)
	res.StateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(state))))
	res.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	return res
}

// DeserializeVanillaCell deserializes a VanillaCell.
func DeserializeVanillaCell(d []byte) (*VanillaCell, error) {
	var stW, inW, b, start *anyvecsave.S
	var a anynet.Layer
	if err := serializer.DeserializeAny(d, &stW, &inW, &b, &start, &a); err != nil {
		return nil, err
	}
	state := b.Vector.Len()
	in := inW.Vector.Len() / state
	if stW.Vector.Len() != state*state || inW.Vector.Len() != in*state ||
		start.Vector.Len() != state {
		return nil, errors.New("incorrect vanilla cell matrix size")
	}
	return &VanillaCell{
		InCount:      in,
		StateSize:    state,
		StateWeights: anydiff.NewVar(stW.Vector),
		InputWeights: anydiff.NewVar(inW.Vector),
		Biases:       anydiff.NewVar(b.Vector),
		StartState:   anydiff.NewVar(start.Vector),
		Activation:   a,
	}, nil
}

// StateSizes returns the size of the hidden state.
func (v *VanillaCell) StateSizes() []int {
	return []int{v.StateSize}
}

// Start returns the start state variable.
func (v *VanillaCell) Start() []*anydiff.Var {
	return []*anydiff.Var{v.StartState}
}

// Step applies the cell for one timestep.
func (v *VanillaCell) Step(parts []anydiff.Res, in anydiff.Res, n int) (anydiff.Res,
	[]anydiff.Res) {
	wState := applyWeights(v.StateSize, v.StateSize, v.StateWeights, parts[0])
	wInput := applyWeights(v.InCount, v.StateSize, v.InputWeights, in)
	biased := anydiff.AddRepeated(anydiff.Add(wState, wInput), v.Biases)
	out := v.Activation.Apply(biased, n)
	return out, []anydiff.Res{out}
}

// Parameters returns the cell's parameters, including
// those of the activation if it has any.
func (v *VanillaCell) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{v.StateWeights, v.InputWeights, v.Biases, v.StartState}
	if p, ok := v.Activation.(anynet.Parameterizer); ok {
		res = append(res, p.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a VanillaCell with the serializer package.
func (v *VanillaCell) SerializerType() string {
	return "github.com/unixpickle/seqtoseq.VanillaCell"
}

// Serialize serializes the VanillaCell.
func (v *VanillaCell) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: v.StateWeights.Vector},
		&anyvecsave.S{Vector: v.InputWeights.Vector},
		&anyvecsave.S{Vector: v.Biases.Vector},
		&anyvecsave.S{Vector: v.StartState.Vector},
		v.Activation,
	)
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
