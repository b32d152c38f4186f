package seqtoseq

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

const lstmRememberBias = 1

func init() {
	var g LSTMCellGate
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeLSTMCellGate)
	var l LSTMCell
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLSTMCell)
}

// LSTMCell is a long short-term memory cell with two
// state parts: the hidden state and the internal cell
// state.
// There are no peephole connections.
type LSTMCell struct {
	InValue  *LSTMCellGate
	In       *LSTMCellGate
	Remember *LSTMCellGate
	Output   *LSTMCellGate

	StartHidden *anydiff.Var
	StartCell   *anydiff.Var
}

// NewLSTMCell creates a randomized LSTMCell.
//
// The remember gate is initially biased to remember
// things.
func NewLSTMCell(c anyvec.Creator, in, state int) Cell {
	res := &LSTMCell{
		InValue:     NewLSTMCellGate(c, in, state, anynet.Tanh),
		In:          NewLSTMCellGate(c, in, state, anynet.Sigmoid),
		Remember:    NewLSTMCellGate(c, in, state, anynet.Sigmoid),
		Output:      NewLSTMCellGate(c, in, state, anynet.Sigmoid),
		StartHidden: anydiff.NewVar(c.MakeVector(state)),
		StartCell:   anydiff.NewVar(c.MakeVector(state)),
	}
	res.Remember.Biases.Vector.AddScalar(c.MakeNumeric(lstmRememberBias))
	return res
}

// DeserializeLSTMCell deserializes an LSTMCell.
func DeserializeLSTMCell(d []byte) (*LSTMCell, error) {
	var inVal, in, rem, out *LSTMCellGate
	var hidden, cell *anyvecsave.S
	if err := serializer.DeserializeAny(d, &inVal, &in, &rem, &out, &hidden, &cell); err != nil {
		return nil, err
	}
	return &LSTMCell{
		InValue:     inVal,
		In:          in,
		Remember:    rem,
		Output:      out,
		StartHidden: anydiff.NewVar(hidden.Vector),
		StartCell:   anydiff.NewVar(cell.Vector),
	}, nil
}

// StateSizes returns the hidden and cell state sizes.
func (l *LSTMCell) StateSizes() []int {
	state := l.StartHidden.Vector.Len()
	return []int{state, state}
}

// Start returns the start state variables in the order
// hidden, cell.
func (l *LSTMCell) Start() []*anydiff.Var {
	return []*anydiff.Var{l.StartHidden, l.StartCell}
}

// Step applies the cell for one timestep.
// The output is the new hidden state.
func (l *LSTMCell) Step(parts []anydiff.Res, in anydiff.Res, n int) (anydiff.Res,
	[]anydiff.Res) {
	hidden, cell := parts[0], parts[1]
	inValue := l.InValue.Apply(hidden, in, n)
	inGate := l.In.Apply(hidden, in, n)
	remember := l.Remember.Apply(hidden, in, n)
	outGate := l.Output.Apply(hidden, in, n)

	newCell := anydiff.Add(
		anydiff.Mul(remember, cell),
		anydiff.Mul(inGate, inValue),
	)
	newHidden := anydiff.Mul(outGate, anydiff.Tanh(newCell))
	return newHidden, []anydiff.Res{newHidden, newCell}
}

// Parameters returns the cell's parameters.
func (l *LSTMCell) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{l.StartHidden, l.StartCell}
	for _, g := range []*LSTMCellGate{l.InValue, l.In, l.Remember, l.Output} {
		res = append(res, g.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an LSTMCell with the serializer package.
func (l *LSTMCell) SerializerType() string {
	return "github.com/unixpickle/seqtoseq.LSTMCell"
}

// Serialize serializes the LSTMCell.
func (l *LSTMCell) Serialize() ([]byte, error) {
	return serializer.SerializeAny(l.InValue, l.In, l.Remember, l.Output,
		&anyvecsave.S{Vector: l.StartHidden.Vector},
		&anyvecsave.S{Vector: l.StartCell.Vector})
}

// An LSTMCellGate computes a gate value from the previous
// hidden state and the input.
type LSTMCellGate struct {
	StateWeights *anydiff.Var
	InputWeights *anydiff.Var
	Biases       *anydiff.Var
	Activation   anynet.Layer
}

// NewLSTMCellGate creates a randomized gate.
func NewLSTMCellGate(c anyvec.Creator, in, state int, activation anynet.Layer) *LSTMCellGate {
	// Hijack the vanilla randomization code.
	vn := NewVanillaCell(c, in, state).(*VanillaCell)
	return &LSTMCellGate{
		StateWeights: vn.StateWeights,
		InputWeights: vn.InputWeights,
		Biases:       vn.Biases,
		Activation:   activation,
	}
}

// DeserializeLSTMCellGate deserializes an LSTMCellGate.
func DeserializeLSTMCellGate(d []byte) (*LSTMCellGate, error) {
	var sw, iw, b *anyvecsave.S
	var a anynet.Activation
	if err := serializer.DeserializeAny(d, &sw, &iw, &b, &a); err != nil {
		return nil, err
	}
	return &LSTMCellGate{
		StateWeights: anydiff.NewVar(sw.Vector),
		InputWeights: anydiff.NewVar(iw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
		Activation:   a,
	}, nil
}

// Apply computes the gate value for a batch of n
// sequences.
func (g *LSTMCellGate) Apply(hidden, in anydiff.Res, n int) anydiff.Res {
	state := g.Biases.Vector.Len()
	inCount := g.InputWeights.Vector.Len() / state
	wState := applyWeights(state, state, g.StateWeights, hidden)
	wInput := applyWeights(inCount, state, g.InputWeights, in)
	biased := anydiff.AddRepeated(anydiff.Add(wState, wInput), g.Biases)
	return g.Activation.Apply(biased, n)
}

// Parameters returns the gate's parameters.
func (g *LSTMCellGate) Parameters() []*anydiff.Var {
	return []*anydiff.Var{g.StateWeights, g.InputWeights, g.Biases}
}

// SerializerType returns the unique ID used to serialize
// an LSTMCellGate with the serializer package.
func (g *LSTMCellGate) SerializerType() string {
	return "github.com/unixpickle/seqtoseq.LSTMCellGate"
}

// Serialize serializes the gate.
func (g *LSTMCellGate) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: g.StateWeights.Vector},
		&anyvecsave.S{Vector: g.InputWeights.Vector},
		&anyvecsave.S{Vector: g.Biases.Vector},
		g.Activation,
	)
}
