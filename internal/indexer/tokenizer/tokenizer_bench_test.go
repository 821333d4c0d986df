package tokenizer

import (
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Forest fires spread quickly through dry national parks. Firefighters
        contain the burning areas while residents are evacuated from nearby villages.
        İzmir ve Muğla'daki orman yangınları rüzgarın etkisiyle büyüdü.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenization, stemming
        and stop word removal to normalize text into searchable terms. Link analysis
        such as PageRank and HITS rewards pages that other pages point to. `, 20),
}

func BenchmarkTerms(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Terms(text)
			}
		})
	}
}
