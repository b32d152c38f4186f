// Command reverse trains a small encoder-decoder model
// to emit the reverse of a random token sequence.
package main

import (
	"flag"
	"log"
	"math/rand"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/rip"
	"github.com/unixpickle/seqtoseq"
)

func main() {
	var numSeqs int
	var vocabSize int
	var maxLen int
	var stateSize int
	var batchSize int
	var stepSize float64
	var clip float64
	flag.IntVar(&numSeqs, "seqs", 2000, "number of training sequences")
	flag.IntVar(&vocabSize, "vocab", 16, "vocabulary size (including the sentinel)")
	flag.IntVar(&maxLen, "maxlen", 8, "maximum sequence length")
	flag.IntVar(&stateSize, "state", 64, "recurrent state size")
	flag.IntVar(&batchSize, "batch", 20, "minibatch size")
	flag.Float64Var(&stepSize, "step", 0.001, "step size")
	flag.Float64Var(&clip, "clip", 5, "gradient clipping threshold")
	flag.Parse()

	log.Println("Building corpus...")
	source := make([][]int, numSeqs)
	target := make([][]int, numSeqs)
	for i := range source {
		seq := make([]int, 1+rand.Intn(maxLen))
		for j := range seq {
			seq[j] = 1 + rand.Intn(vocabSize-1)
		}
		source[i] = seq
		rev := make([]int, len(seq))
		for j, x := range seq {
			rev[len(seq)-1-j] = x
		}
		target[i] = rev
	}

	creator := anyvec32.CurrentCreator()
	gen := seqtoseq.NewGenerator(source, target, seqtoseq.GenConfig{
		BatchSize: batchSize,
		NumRows:   vocabSize,
		Dense:     true,
		Creator:   creator,
	})
	model := seqtoseq.NewModel(seqtoseq.Config{
		Creator:   creator,
		VocabSize: vocabSize,
		StateSize: stateSize,
	})

	tracker := &seqtoseq.NormTracker{}
	opts := &seqtoseq.TrainOptions{
		Cost:        anynet.DotCost{},
		Rater:       anysgd.ConstRater(stepSize),
		Transformer: &anysgd.Adam{},
		Clip:        clip,
		Tracker:     tracker,
		StatusFunc: func(cycles int, meanLoss float64) {
			if cycles%25 == 0 {
				log.Printf("cycle %d: loss=%f", cycles, meanLoss)
			}
		},
	}

	log.Println("Press ctrl+c once to stop...")
	stopper := rip.NewRIP()
	var epoch int
	for !stopper.Done() {
		loss := seqtoseq.Train(model, gen.Steps(), opts)
		epoch++
		log.Printf("epoch %d: loss=%f maxWeight=%f maxGrad=%f", epoch, loss,
			tracker.MaxWeightNorm, tracker.MaxGradientNorm)
	}

	for i := 0; i < 5; i++ {
		src := source[rand.Intn(len(source))]
		log.Printf("in:  %v", src)
		log.Printf("out: %v", model.Generate(src, vocabSize, 2*maxLen))
	}
}
