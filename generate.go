package seqtoseq

// Generate runs greedy inference for a single source
// sequence: the source is encoded in reverse with a
// leading sentinel, the state is bridged, and the decoder
// is fed its own best prediction at every step.
//
// Decoding stops at the sentinel or after maxLen tokens.
//
// This is the inference-time counterpart of the teacher
// forcing used during training, where the stream supplies
// the gold previous token instead.
func (m *Model) Generate(source []int, numRows, maxLen int) []int {
	m.Reset(1)

	in := NewTokens(numRows, 1)
	length := 1 + len(source)
	for p := 0; p < length; p++ {
		in.Set(0, tokenAt(source, length-p))
		m.EncodeStep(in, false)
	}
	m.BridgeForward()

	var res []int
	prev := Sentinel
	for i := 0; i < maxLen; i++ {
		in.Set(0, prev)
		out := m.Decoder.StepForward(in, false)
		prev = argmax(vectorData(out))
		if prev == Sentinel {
			break
		}
		res = append(res, prev)
	}
	return res
}

func argmax(data []float64) int {
	var res int
	for i, x := range data {
		if x > data[res] {
			res = i
		}
	}
	return res
}
