package seqtoseq

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// Config holds the shared configuration for a Model's two
// graphs.
type Config struct {
	// Creator creates all vectors and parameters.
	Creator anyvec.Creator

	// VocabSize is the height of the token batches fed to
	// and produced by the model, typically the maximum of
	// the source and target vocabulary sizes.
	VocabSize int

	// StateSize is the per-sequence size of the recurrent
	// state.
	StateSize int

	// Cell creates the recurrent core.
	// It is called twice, so the encoder and decoder get
	// structurally related but separately parameterized
	// cells.
	// If it is nil, NewLSTMCell is used.
	Cell CellFactory
}

// A Model owns an encoder graph and a decoder graph and
// orchestrates the encode, decode, and
// backpropagation-through-time cycle between them.
type Model struct {
	Encoder Graph
	Decoder Graph

	creator anyvec.Creator
	batch   int

	// gold is a LIFO of target batches accumulated during
	// decoding and drained, most recent first, by
	// Backprop.
	gold []*Tokens

	bridge *Bridge

	lossSum   float64
	lossCount int

	// cycleCount is the number of loss terms accumulated
	// in the current cycle; it divides the cycle's
	// gradient to make it an average.
	cycleCount int
}

// NewModel creates a Model from a configuration.
//
// The decoder embeds one instance of the same cell
// topology as the encoder, followed by an output
// projection and a log-softmax normalization stage.
func NewModel(cfg Config) *Model {
	factory := cfg.Cell
	if factory == nil {
		factory = NewLSTMCell
	}
	head := anynet.Net{
		anynet.NewFC(cfg.Creator, cfg.StateSize, cfg.VocabSize),
		anynet.LogSoftmax,
	}
	return &Model{
		Encoder: NewNet(factory(cfg.Creator, cfg.VocabSize, cfg.StateSize), nil),
		Decoder: NewNet(factory(cfg.Creator, cfg.VocabSize, cfg.StateSize), head),
		creator: cfg.Creator,
	}
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, err
	}
	if len(slice) != 3 {
		return nil, errors.New("deserialize Model: incorrect list length")
	}
	encCell, ok1 := slice[0].(Cell)
	decCell, ok2 := slice[1].(Cell)
	head, ok3 := slice[2].(anynet.Net)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("deserialize Model: incorrect types")
	}
	return &Model{
		Encoder: NewNet(encCell, nil),
		Decoder: NewNet(decCell, head),
		creator: encCell.Start()[0].Vector.Creator(),
	}, nil
}

// Reset returns both graphs to their pre-sequence state
// for a batch of the given size.
// It must be called once per cycle, before encoding
// starts.
func (m *Model) Reset(batch int) {
	if len(m.gold) > 0 {
		panic("gold stack not drained by previous cycle")
	}
	m.batch = batch
	m.bridge = nil
	m.cycleCount = 0
	m.Encoder.Reset(batch)
	m.Decoder.Reset(batch)
}

// EncodeStep forwards one source token batch through the
// encoder.
func (m *Model) EncodeStep(in *Tokens, training bool) {
	m.Encoder.StepForward(in, training)
}

// BridgeForward hands the encoder's final state to the
// decoder.
func (m *Model) BridgeForward() {
	m.bridge = BridgeForward(m.Encoder, m.Decoder)
}

// DecodeStep forwards one previous-token batch through
// the decoder and returns the predicted distribution.
//
// If cost is non-nil, the cost of the prediction against
// gold is added to the model's running loss statistic.
// If training is true, an independent copy of gold is
// pushed for the later backward pass.
func (m *Model) DecodeStep(prev, gold *Tokens, training bool, cost anynet.Cost) anyvec.Vector {
	out := m.Decoder.StepForward(prev, training)
	if cost != nil {
		c := cost.Cost(anydiff.NewConst(gold.Dense(m.creator)),
			anydiff.NewConst(out), m.batch)
		m.lossSum += vectorSum(c.Output())
		m.lossCount += m.batch
		m.cycleCount += m.batch
	}
	if training {
		m.gold = append(m.gold, gold.Clone())
	}
	return out
}

// Backprop runs backpropagation through time over the
// current cycle: the decoder is stepped backward once per
// accumulated gold batch, most recent first, then the
// state gradient is bridged back and the encoder is
// drained.
//
// Backprop panics if the decoder's step pointer is not
// exactly 0 after the gold stack drains; that means an
// encode/decode step-count mismatch, which is a data or
// configuration bug.
func (m *Model) Backprop(cost anynet.Cost) {
	for len(m.gold) > 0 {
		gold := m.gold[len(m.gold)-1]
		m.gold = m.gold[:len(m.gold)-1]
		m.Decoder.StepBackward(gold, cost)
	}
	if steps := m.Decoder.Steps(); steps != 0 {
		panic(fmt.Sprintf("decoder step pointer is %d after BPTT", steps))
	}
	m.bridge.Backward()
	for m.Encoder.Steps() > 0 {
		m.Encoder.StepBackward(nil, nil)
	}
}

// Parameters returns the concatenated parameters of both
// graphs.
func (m *Model) Parameters() []*anydiff.Var {
	return append(append([]*anydiff.Var{}, m.Encoder.Parameters()...),
		m.Decoder.Parameters()...)
}

// WeightNorm returns the Euclidean norm of all the
// model's parameters.
func (m *Model) WeightNorm() float64 {
	enc := m.Encoder.WeightNorm()
	dec := m.Decoder.WeightNorm()
	return math.Sqrt(enc*enc + dec*dec)
}

// MeanLoss returns the mean of the losses accumulated by
// DecodeStep since the last ResetLoss.
func (m *Model) MeanLoss() float64 {
	if m.lossCount == 0 {
		return 0
	}
	return m.lossSum / float64(m.lossCount)
}

// LossCount returns the number of accumulated loss terms.
func (m *Model) LossCount() int {
	return m.lossCount
}

// CycleLossCount returns the number of loss terms
// accumulated since the last Reset.
func (m *Model) CycleLossCount() int {
	return m.cycleCount
}

// ResetLoss clears the running loss statistic.
func (m *Model) ResetLoss() {
	m.lossSum = 0
	m.lossCount = 0
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/unixpickle/seqtoseq.Model"
}

// Serialize serializes the Model.
// It fails unless both graphs are *Nets with serializable
// cells.
func (m *Model) Serialize() ([]byte, error) {
	enc, ok1 := m.Encoder.(*Net)
	dec, ok2 := m.Decoder.(*Net)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("not serializable: %T and %T", m.Encoder, m.Decoder)
	}
	encCell, ok1 := enc.Cell.(serializer.Serializer)
	decCell, ok2 := dec.Cell.(serializer.Serializer)
	head, ok3 := dec.Head.(anynet.Net)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("not serializable: %T with head %T", enc.Cell, dec.Head)
	}
	return serializer.SerializeSlice([]serializer.Serializer{encCell, decCell, head})
}
