package ranker

import (
	"fmt"
	"testing"
)

func BenchmarkScoreWith(b *testing.B) {
	for _, numDocs := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			postings := map[string][]Posting{}
			for _, term := range []string{"fire", "forest", "smoke"} {
				list := make([]Posting, numDocs)
				for i := range list {
					list[i] = Posting{DocID: int64(i + 1), Frequency: i%5 + 1, DocLength: 50 + i%200}
				}
				postings[term] = list
			}
			corpus := CorpusStats{DocCount: int64(numDocs * 2), AvgDocLength: 150}
			tokens := []string{"fire", "forest", "smoke"}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = ScoreWith(corpus, postings, tokens, DefaultParams())
			}
		})
	}
}
