package seqtoseq

import (
	"log"
	"sort"

	"github.com/unixpickle/anyvec"
)

// A Phase tags a Step with the part of the cycle it
// belongs to.
type Phase int

const (
	// Encoding steps carry source tokens and no target.
	Encoding Phase = iota

	// Decoding steps carry a previous target token and the
	// gold next token.
	Decoding
)

// A Step is one item of a Generator's stream.
//
// Input and Target are reused in place by the stream:
// Clone anything that must survive the next call to Next.
// Target is non-nil exactly when Phase is Decoding.
type Step struct {
	Phase  Phase
	Input  *Tokens
	Target *Tokens
}

// GenConfig configures a Generator.
type GenConfig struct {
	// BatchSize is the number of sequences per minibatch
	// window.
	BatchSize int

	// NumRows is the height of the emitted token batches,
	// typically the maximum of the two vocabulary sizes.
	// If it is 0, the height is derived from the largest
	// token id in the corpora.
	NumRows int

	// Dense, if true, makes the generator maintain one-hot
	// backing vectors created with Creator.
	Dense bool

	// Creator is used for dense token batches.
	// It is required when Dense is true.
	Creator anyvec.Creator

	// Limit, if non-zero, caps the total number of
	// sequences processed.
	Limit int

	// Logf receives the one-time truncation warning.
	// If it is nil, log.Printf is used.
	Logf func(format string, args ...interface{})
}

// A Generator owns a pair of parallel corpora, sorted by
// source length, and produces streams of phase-tagged
// minibatch steps.
type Generator struct {
	cfg GenConfig

	source [][]int
	target [][]int

	x, y *Tokens

	warned bool
}

// NewGenerator creates a Generator for parallel corpora
// of token-id sequences.
//
// Both corpora are re-ordered (stably) by source sequence
// length; the order is fixed for the generator's
// lifetime.
// NewGenerator panics if the corpora have different
// lengths.
func NewGenerator(source, target [][]int, cfg GenConfig) *Generator {
	if len(source) != len(target) {
		panic("mismatching source and target corpus lengths")
	}
	if cfg.BatchSize <= 0 {
		panic("batch size must be positive")
	}
	if cfg.Dense && cfg.Creator == nil {
		panic("dense token batches require a creator")
	}

	perm := make([]int, len(source))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return len(source[perm[i]]) < len(source[perm[j]])
	})

	res := &Generator{
		cfg:    cfg,
		source: make([][]int, len(source)),
		target: make([][]int, len(target)),
	}
	for i, j := range perm {
		res.source[i] = source[j]
		res.target[i] = target[j]
	}
	if res.cfg.NumRows == 0 {
		res.cfg.NumRows = 1 + maxTokenID(res.source, res.target)
	}
	return res
}

// NewGeneratorFiles reads two parallel corpus files,
// growing a fresh vocabulary for each, and creates a
// Generator from them.
func NewGeneratorFiles(sourcePath, targetPath string, cfg GenConfig) (gen *Generator,
	sourceVocab, targetVocab *Vocab, err error) {
	sourceVocab = NewVocab()
	targetVocab = NewVocab()
	source, err := ReadCorpusFile(sourcePath, sourceVocab)
	if err != nil {
		return nil, nil, nil, err
	}
	target, err := ReadCorpusFile(targetPath, targetVocab)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(source) != len(target) {
		panic("mismatching source and target corpus lengths")
	}
	if cfg.NumRows == 0 {
		cfg.NumRows = sourceVocab.Len()
		if targetVocab.Len() > cfg.NumRows {
			cfg.NumRows = targetVocab.Len()
		}
	}
	return NewGenerator(source, target, cfg), sourceVocab, targetVocab, nil
}

// NumRows returns the height of the emitted token
// batches.
func (g *Generator) NumRows() int {
	return g.cfg.NumRows
}

// Len returns the number of sequences that the stream
// will actually process: the sequence count, capped by
// the configured limit and truncated to whole batches.
func (g *Generator) Len() int {
	n := len(g.source)
	if g.cfg.Limit > 0 && g.cfg.Limit < n {
		n = g.cfg.Limit
	}
	return n - n%g.cfg.BatchSize
}

// Steps creates a fresh stream over the sorted corpora.
// Streams are forward-only; restarting means calling
// Steps again.
func (g *Generator) Steps() *Stream {
	if g.x == nil {
		if g.cfg.Dense {
			g.x = NewDenseTokens(g.cfg.Creator, g.cfg.NumRows, g.cfg.BatchSize)
			g.y = NewDenseTokens(g.cfg.Creator, g.cfg.NumRows, g.cfg.BatchSize)
		} else {
			g.x = NewTokens(g.cfg.NumRows, g.cfg.BatchSize)
			g.y = NewTokens(g.cfg.NumRows, g.cfg.BatchSize)
		}
		g.x.shared = true
		g.y.shared = true
	}
	return &Stream{gen: g}
}

// A Stream is a lazy, finite, forward-only cursor over a
// Generator's minibatch steps.
type Stream struct {
	gen *Generator

	batchIdx int
	pos      int
	decoding bool

	done bool
}

// Next produces the next step of the stream, or false if
// the stream is exhausted.
//
// The returned step's token batches are owned by the
// generator and overwritten by the following call.
func (s *Stream) Next() (*Step, bool) {
	if s.done {
		return nil, false
	}
	g := s.gen
	start := s.batchIdx * g.cfg.BatchSize
	if start+g.cfg.BatchSize > g.Len() {
		s.done = true
		g.warnTruncation()
		return nil, false
	}
	window := g.source[start : start+g.cfg.BatchSize]
	if s.decoding {
		window = g.target[start : start+g.cfg.BatchSize]
	}

	length := 1 + maxSeqLen(window)
	res := &Step{Phase: Encoding, Input: g.x}
	if s.decoding {
		res.Phase = Decoding
		res.Target = g.y
		for col, seq := range window {
			res.Input.Set(col, tokenAt(seq, s.pos))
			res.Target.Set(col, tokenAt(seq, s.pos+1))
		}
		res.Target.Sync()
	} else {
		// Reversed emission: the first token out is the
		// sentinel-padded tail, the last is the sequence's
		// first real token.
		for col, seq := range window {
			res.Input.Set(col, tokenAt(seq, length-s.pos))
		}
	}
	res.Input.Sync()

	s.pos++
	if s.pos == length {
		s.pos = 0
		if s.decoding {
			s.batchIdx++
		}
		s.decoding = !s.decoding
	}
	return res, true
}

func (g *Generator) warnTruncation() {
	n := len(g.source)
	if g.cfg.Limit > 0 && g.cfg.Limit < n {
		n = g.cfg.Limit
	}
	dropped := n - g.Len()
	if dropped == 0 || g.warned {
		return
	}
	g.warned = true
	logf := g.cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("dropping %d trailing sequences: too few to fill a batch of %d",
		dropped, g.cfg.BatchSize)
}

// tokenAt returns the 1-indexed token of seq at pos, or
// the sentinel when pos is out of range.
func tokenAt(seq []int, pos int) int {
	if pos < 1 || pos > len(seq) {
		return Sentinel
	}
	return seq[pos-1]
}

func maxSeqLen(seqs [][]int) int {
	var res int
	for _, s := range seqs {
		if len(s) > res {
			res = len(s)
		}
	}
	return res
}

func maxTokenID(corpora ...[][]int) int {
	var res int
	for _, corpus := range corpora {
		for _, seq := range corpus {
			for _, tok := range seq {
				if tok > res {
					res = tok
				}
			}
		}
	}
	return res
}
