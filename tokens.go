package seqtoseq

import "github.com/unixpickle/anyvec"

// Sentinel is the reserved end-of-sequence token id.
// It terminates encoder input and bounds decoder input
// and output.
const Sentinel = 0

// Tokens is one timestep of token ids across a minibatch,
// viewed as a one-hot matrix with NumRows rows (the
// vocabulary height) and Cols columns (the batch size).
//
// A Tokens may use a dense backing vector or store only
// the active row per column.
// Producers such as the Generator overwrite their Tokens
// in place on every step: a consumer that needs a value
// past the current step must Clone it.
type Tokens struct {
	numRows int
	rows    []int

	dense anyvec.Vector
	host  []float64

	shared bool
}

// NewTokens creates a sparse Tokens with every column set
// to the sentinel.
func NewTokens(numRows, cols int) *Tokens {
	return &Tokens{
		numRows: numRows,
		rows:    make([]int, cols),
	}
}

// NewDenseTokens is like NewTokens, but the result keeps
// a dense one-hot vector from c in sync with the rows.
func NewDenseTokens(c anyvec.Creator, numRows, cols int) *Tokens {
	res := NewTokens(numRows, cols)
	res.host = make([]float64, numRows*cols)
	for i := 0; i < cols; i++ {
		res.host[i*numRows] = 1
	}
	res.dense = c.MakeVectorData(c.MakeNumericList(res.host))
	return res
}

// NumRows returns the vocabulary height.
func (t *Tokens) NumRows() int {
	return t.numRows
}

// Cols returns the batch size.
func (t *Tokens) Cols() int {
	return len(t.rows)
}

// At returns the token id in column col.
func (t *Tokens) At(col int) int {
	return t.rows[col]
}

// Set sets the token id in column col.
//
// For dense Tokens, the backing vector is not updated
// until Sync is called.
func (t *Tokens) Set(col, row int) {
	if row < 0 || row >= t.numRows {
		panic("token id out of range")
	}
	t.rows[col] = row
}

// Sync pushes the current rows into the dense backing
// vector, if there is one.
func (t *Tokens) Sync() {
	if t.dense == nil {
		return
	}
	for i := range t.host {
		t.host[i] = 0
	}
	for col, row := range t.rows {
		t.host[col*t.numRows+row] = 1
	}
	t.dense.SetData(t.dense.Creator().MakeNumericList(t.host))
}

// Dense returns the one-hot form of t, using c to create
// a vector if t has no dense backing.
//
// For dense Tokens the internal backing vector is
// returned directly, so it is subject to in-place
// overwriting by the producer.
func (t *Tokens) Dense(c anyvec.Creator) anyvec.Vector {
	if t.dense != nil {
		return t.dense
	}
	data := make([]float64, t.numRows*len(t.rows))
	for col, row := range t.rows {
		data[col*t.numRows+row] = 1
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}

// Shared reports whether the receiver's storage is reused
// in place by its producer.
func (t *Tokens) Shared() bool {
	return t.shared
}

// Clone creates an independent copy of t.
// The copy is never marked as shared and drops the dense
// backing, which Dense will recreate on demand.
func (t *Tokens) Clone() *Tokens {
	return &Tokens{
		numRows: t.numRows,
		rows:    append([]int{}, t.rows...),
	}
}
