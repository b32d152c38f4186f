package seqtoseq

import (
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
)

func TestTokensDense(t *testing.T) {
	c := anyvec32.CurrentCreator()
	tok := NewDenseTokens(c, 3, 2)
	tok.Set(0, 1)
	tok.Set(1, 2)
	tok.Sync()
	expected := []float64{0, 1, 0, 0, 0, 1}
	actual := vectorData(tok.Dense(c))
	for i, x := range expected {
		if actual[i] != x {
			t.Fatalf("expected %v but got %v", expected, actual)
		}
	}
	if tok.Dense(c) != tok.dense {
		t.Error("dense tokens should expose their backing vector")
	}
}

func TestTokensSparseDense(t *testing.T) {
	c := anyvec32.CurrentCreator()
	tok := NewTokens(4, 1)
	tok.Set(0, 3)
	d1 := tok.Dense(c)
	d2 := tok.Dense(c)
	if d1 == d2 {
		t.Error("sparse tokens should materialize a fresh vector per call")
	}
	data := vectorData(d1)
	for i, x := range data {
		if (i == 3) != (x == 1) {
			t.Fatalf("bad one-hot data: %v", data)
		}
	}
}

func TestTokensClone(t *testing.T) {
	tok := NewTokens(5, 2)
	tok.Set(0, 4)
	tok.Set(1, 2)
	clone := tok.Clone()
	tok.Set(0, 1)
	if clone.At(0) != 4 || clone.At(1) != 2 {
		t.Error("clone shares storage with the original")
	}
}

func TestTokensRange(t *testing.T) {
	tok := NewTokens(3, 1)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range token")
		}
	}()
	tok.Set(0, 3)
}
