// Package ranker scores documents against a tokenized query with Okapi BM25.
package ranker

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// Posting is one (term, document) entry of the inverted index joined with the
// document's length in tokens.
type Posting struct {
	DocID     int64
	Frequency int
	DocLength int
}

// CorpusStats are the collection-wide BM25 inputs.
type CorpusStats struct {
	DocCount     int64
	AvgDocLength float64
}

// Statistics is the read side of the inverted index. Postings returns the
// postings of every requested term in one round trip; terms without
// postings may be absent from the result.
type Statistics interface {
	CorpusStats(ctx context.Context) (CorpusStats, error)
	Postings(ctx context.Context, terms []string) (map[string][]Posting, error)
}

// Params are the BM25 free parameters.
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Score fetches corpus statistics and the postings of all distinct query
// terms concurrently, then scores them with ScoreWith.
func Score(ctx context.Context, stats Statistics, tokens []string, params Params) (map[int64]float64, error) {
	if len(tokens) == 0 {
		return map[int64]float64{}, nil
	}

	var (
		corpus   CorpusStats
		postings map[string][]Posting
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		corpus, err = stats.CorpusStats(gctx)
		return apperrors.Unavailable("bm25 corpus stats", err)
	})
	g.Go(func() error {
		var err error
		postings, err = stats.Postings(gctx, DistinctTerms(tokens))
		return apperrors.Unavailable("bm25 postings", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ScoreWith(corpus, postings, tokens, params), nil
}

// ScoreWith computes BM25 for every document holding at least one query
// term. Each occurrence of a token in tokens contributes once, so repeated
// query words weigh more. Terms with no postings are skipped.
func ScoreWith(corpus CorpusStats, postings map[string][]Posting, tokens []string, params Params) map[int64]float64 {
	scores := make(map[int64]float64)
	for _, term := range tokens {
		list := postings[term]
		docFreq := len(list)
		if docFreq == 0 {
			continue
		}
		idf := IDF(corpus.DocCount, int64(docFreq))
		for _, p := range list {
			scores[p.DocID] += idf * computeTFNorm(
				float64(p.Frequency),
				float64(p.DocLength),
				corpus.AvgDocLength,
				params,
			)
		}
	}
	return scores
}

// DistinctTerms returns the unique tokens in sorted order, the shape a
// batched postings lookup expects.
func DistinctTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IDF is the smoothed inverse document frequency ln(1 + (N-df+0.5)/(df+0.5)).
// It stays positive for terms present in most documents.
func IDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64, params Params) float64 {
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + params.K1*(1-params.B+params.B*lengthRatio)
	if denominator == 0 {
		return 0
	}
	return termFreq * (params.K1 + 1) / denominator
}
