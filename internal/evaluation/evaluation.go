// Package evaluation scores ranked result lists against labelled relevance
// judgements.
package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PrecisionAtK is the share of relevant results among the first k. The
// denominator is k even when fewer results were returned.
func PrecisionAtK(labels []bool, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(countRelevant(labels, k)) / float64(k)
}

// RecallAtK is the share of all relevant results that appear in the first k.
// It is 0 when nothing is relevant.
func RecallAtK(labels []bool, k int) float64 {
	total := countRelevant(labels, len(labels))
	if total == 0 || k <= 0 {
		return 0
	}
	return float64(countRelevant(labels, k)) / float64(total)
}

func countRelevant(labels []bool, k int) int {
	if k > len(labels) {
		k = len(labels)
	}
	n := 0
	for _, rel := range labels[:k] {
		if rel {
			n++
		}
	}
	return n
}

// Label marks each ranked id as relevant or not.
func Label(ranked []int64, relevant map[int64]bool) []bool {
	labels := make([]bool, len(ranked))
	for i, id := range ranked {
		labels[i] = relevant[id]
	}
	return labels
}

type Metrics struct {
	Query        string  `json:"query"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1           float64 `json:"f1_score"`
	PrecisionAtK float64 `json:"precision_at_k"`
	RecallAtK    float64 `json:"recall_at_k"`
}

// Evaluate scores one ranked list. relevantTotal is the number of relevant
// documents known for the query; when it is smaller than the relevant
// results found, the found count is used instead.
func Evaluate(query string, labels []bool, relevantTotal, k int) Metrics {
	m := Metrics{Query: query}
	found := countRelevant(labels, len(labels))
	if relevantTotal < found {
		relevantTotal = found
	}
	if len(labels) > 0 {
		m.Precision = float64(found) / float64(len(labels))
	}
	if relevantTotal > 0 {
		m.Recall = float64(found) / float64(relevantTotal)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.PrecisionAtK = PrecisionAtK(labels, k)
	m.RecallAtK = RecallAtK(labels, k)
	return m
}

// Mean averages the metrics of several queries.
func Mean(all []Metrics) Metrics {
	var out Metrics
	if len(all) == 0 {
		return out
	}
	for _, m := range all {
		out.Precision += m.Precision
		out.Recall += m.Recall
		out.F1 += m.F1
		out.PrecisionAtK += m.PrecisionAtK
		out.RecallAtK += m.RecallAtK
	}
	n := float64(len(all))
	out.Query = "mean"
	out.Precision /= n
	out.Recall /= n
	out.F1 /= n
	out.PrecisionAtK /= n
	out.RecallAtK /= n
	return out
}

// Judgements holds relevance labels per query in ranked order.
type Judgements map[string][]bool

// Queries returns the judged queries sorted.
func (j Judgements) Queries() []string {
	qs := make([]string, 0, len(j))
	for q := range j {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	return qs
}

// EvaluateAll scores every judged query at cut-off k.
func (j Judgements) EvaluateAll(k int) []Metrics {
	out := make([]Metrics, 0, len(j))
	for _, q := range j.Queries() {
		labels := j[q]
		out = append(out, Evaluate(q, labels, countRelevant(labels, len(labels)), k))
	}
	return out
}

// ReadJudgements parses semicolon-separated rows with a header containing
// "query" and "is_relevant" columns. Rows keep file order within a query.
func ReadJudgements(r io.Reader) (Judgements, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	queryCol, relCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "query":
			queryCol = i
		case "is_relevant":
			relCol = i
		}
	}
	if queryCol < 0 || relCol < 0 {
		return nil, fmt.Errorf("header must contain query and is_relevant columns, got %v", header)
	}

	out := make(Judgements)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rel, err := strconv.Atoi(strings.TrimSpace(rec[relCol]))
		if err != nil || (rel != 0 && rel != 1) {
			return nil, fmt.Errorf("line %d: is_relevant must be 0 or 1, got %q", line, rec[relCol])
		}
		q := rec[queryCol]
		out[q] = append(out[q], rel == 1)
	}
	return out, nil
}
