package seqtoseq

// A Bridge is the hand-off of recurrent state from an
// encoder's final step to a decoder's initial step.
//
// The forward hand-off aliases the encoder's state
// storage into the decoder rather than copying it.
// The alias is valid for exactly one
// encode/decode/backpropagate cycle: the encoder must not
// take another forward step until Backward has consumed
// the bridge, and a Bridge can be consumed only once.
type Bridge struct {
	enc Graph
	dec Graph

	used bool
}

// BridgeForward aliases every forward-referenced state
// part of the encoder into the decoder's initial state
// and returns the bridge token for the backward hand-off.
func BridgeForward(enc, dec Graph) *Bridge {
	for i := 0; i < dec.NumParts(); i++ {
		if dec.ForwardReferenced(i) {
			dec.SetPart(i, enc.Part(i))
		}
	}
	return &Bridge{enc: enc, dec: dec}
}

// Backward hands the decoder's initial-state gradient
// back to the encoder's final step and invalidates the
// bridge.
//
// It must be called after the decoder has been fully
// stepped backward and before the encoder is.
func (b *Bridge) Backward() {
	if b.used {
		panic("bridge already consumed")
	}
	b.used = true
	for i := 0; i < b.dec.NumParts(); i++ {
		if !b.dec.ForwardReferenced(i) {
			continue
		}
		if g := b.dec.StartGrad(i); g != nil {
			b.enc.InjectUpstream(i, g)
		}
	}
}
