package seqtoseq

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/unixpickle/essentials"
)

// SentinelToken is the textual form of the sentinel in a
// Vocab.
const SentinelToken = "<eos>"

// A Vocab is a growable bijection between tokens and
// integer ids.
// Id 0 is always the end-of-sequence sentinel.
type Vocab struct {
	ids    map[string]int
	tokens []string
}

// NewVocab creates a Vocab containing only the sentinel.
func NewVocab() *Vocab {
	return &Vocab{
		ids:    map[string]int{SentinelToken: Sentinel},
		tokens: []string{SentinelToken},
	}
}

// Len returns the number of tokens, including the
// sentinel.
func (v *Vocab) Len() int {
	return len(v.tokens)
}

// ID returns the id for a token, assigning the next free
// id if the token has not been seen before.
func (v *Vocab) ID(token string) int {
	if id, ok := v.ids[token]; ok {
		return id
	}
	id := len(v.tokens)
	v.ids[token] = id
	v.tokens = append(v.tokens, token)
	return id
}

// Token returns the token for an id.
// It panics if the id has not been assigned.
func (v *Vocab) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		panic("token id out of range")
	}
	return v.tokens[id]
}

// ReadCorpus reads whitespace-tokenized sequences from r,
// one sequence per line, growing v as new tokens are
// seen.
// The sequences contain no sentinel.
func ReadCorpus(r io.Reader, v *Vocab) ([][]int, error) {
	var res [][]int
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<24)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		seq := make([]int, len(fields))
		for i, tok := range fields {
			seq[i] = v.ID(tok)
		}
		res = append(res, seq)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("read corpus", err)
	}
	return res, nil
}

// ReadCorpusFile is like ReadCorpus for a file on disk.
func ReadCorpusFile(path string, v *Vocab) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read corpus", err)
	}
	defer f.Close()
	return ReadCorpus(f, v)
}
