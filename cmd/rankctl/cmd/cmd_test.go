package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"pagerank", "hits", "all", "eval", "terms"}, names)
}

func TestRunEvalTable(t *testing.T) {
	in := strings.NewReader("query;doc_id;is_relevant\nfire;1;1\nfire;2;0\n")
	var out bytes.Buffer
	require.NoError(t, runEval(&out, in, 1, false))

	text := out.String()
	assert.Contains(t, text, "P@1")
	assert.Contains(t, text, "fire")
	assert.Contains(t, text, "mean")
}

func TestRunEvalJSON(t *testing.T) {
	in := strings.NewReader("query;is_relevant\nfire;1\nfire;1\n")
	var out bytes.Buffer
	require.NoError(t, runEval(&out, in, 2, true))

	var payload struct {
		K    int `json:"k"`
		Mean struct {
			PrecisionAtK float64 `json:"precision_at_k"`
		} `json:"mean"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	assert.Equal(t, 2, payload.K)
	assert.InDelta(t, 1.0, payload.Mean.PrecisionAtK, 1e-12)
}

func TestRunEvalRejectsBadK(t *testing.T) {
	assert.Error(t, runEval(&bytes.Buffer{}, strings.NewReader(""), 0, false))
}

func TestPrintEvents(t *testing.T) {
	events := []graph.ScoresReplaced{{
		RunID: "run-1", Algorithm: graph.AlgorithmPageRank, Nodes: 3, Edges: 3,
		Iterations: 40, Converged: true, CompletedAt: time.Unix(0, 0).UTC(),
	}}

	var out bytes.Buffer
	require.NoError(t, printEvents(&out, events, false))
	assert.Contains(t, out.String(), "pagerank")
	assert.Contains(t, out.String(), "run-1")

	out.Reset()
	require.NoError(t, printEvents(&out, events, true))
	var decoded []graph.ScoresReplaced
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, events, decoded)
}

func TestRunTerms(t *testing.T) {
	idx := index.NewMemoryIndex()
	idx.AddDocument(document.Document{ID: 1, Text: "fire fire"})
	idx.AddDocument(document.Document{ID: 2, Text: "fire smoke"})
	idx.AddDocument(document.Document{ID: 3, Text: "rain"})

	var out bytes.Buffer
	require.NoError(t, runTerms(context.Background(), &out, idx, "FIRE volcano fire", true))

	var body struct {
		Documents int64      `json:"documents"`
		Terms     []TermInfo `json:"terms"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, int64(3), body.Documents)
	require.Len(t, body.Terms, 2)
	assert.Equal(t, "fire", body.Terms[0].Term)
	assert.Equal(t, 2, body.Terms[0].DocumentFrequency)
	assert.InDelta(t, ranker.IDF(3, 2), body.Terms[0].IDF, 1e-12)
	assert.Equal(t, "volcano", body.Terms[1].Term)
	assert.Zero(t, body.Terms[1].DocumentFrequency)
	assert.Zero(t, body.Terms[1].IDF)
}

func TestRunTermsTable(t *testing.T) {
	idx := index.NewMemoryIndex()
	idx.AddDocument(document.Document{ID: 1, Text: "fire"})

	var out bytes.Buffer
	require.NoError(t, runTerms(context.Background(), &out, idx, "fire", false))
	assert.Contains(t, out.String(), "documents: 1")
	assert.Contains(t, out.String(), "TERM")
}
