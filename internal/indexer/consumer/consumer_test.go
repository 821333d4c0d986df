package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

type memWriter struct {
	idx *index.MemoryIndex
}

func (m memWriter) IndexDocument(_ context.Context, doc document.Document) (int, error) {
	return m.idx.AddDocument(doc), nil
}

type failingWriter struct {
	calls int
	err   error
}

func (f *failingWriter) IndexDocument(context.Context, document.Document) (int, error) {
	f.calls++
	return 0, f.err
}

type recordingTracker struct{ events []interface{} }

func (r *recordingTracker) Track(e interface{}) { r.events = append(r.events, e) }

func encode(t *testing.T, doc document.Document) []byte {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return b
}

func TestHandleMessageIndexesDocument(t *testing.T) {
	idx := index.NewMemoryIndex()
	tracker := &recordingTracker{}
	handle := HandleMessage(memWriter{idx: idx}, tracker, nil)

	doc := document.Document{
		ID:    1,
		URL:   "https://example.org/1",
		Title: "Forest fire",
		Text:  "forest fire burning",
		Links: []string{"https://example.org/2"},
	}
	require.NoError(t, handle(context.Background(), []byte("1"), encode(t, doc)))

	postings, err := idx.Postings(context.Background(), []string{"fire"})
	require.NoError(t, err)
	assert.Equal(t, []ranker.Posting{{DocID: 1, Frequency: 1, DocLength: 3}}, postings["fire"])

	require.Len(t, tracker.events, 1)
	event := tracker.events[0].(analytics.IndexEvent)
	assert.Equal(t, analytics.EventIndexDoc, event.Type)
	assert.Equal(t, int64(1), event.DocID)
	assert.Equal(t, 3, event.TokenCount)
	assert.Equal(t, 1, event.LinkCount)
}

func TestHandleMessageSkipsMalformedEvents(t *testing.T) {
	w := &failingWriter{}
	handle := HandleMessage(w, nil, nil)

	assert.NoError(t, handle(context.Background(), nil, []byte("{not json")))
	assert.NoError(t, handle(context.Background(), nil, encode(t, document.Document{ID: 0, URL: "https://x"})))
	assert.NoError(t, handle(context.Background(), nil, encode(t, document.Document{ID: 3, URL: " "})))
	assert.Zero(t, w.calls)
}

func TestHandleMessageReturnsStoreErrors(t *testing.T) {
	w := &failingWriter{err: errors.New("constraint violation")}
	handle := HandleMessage(w, nil, nil)

	err := handle(context.Background(), nil, encode(t, document.Document{ID: 5, URL: "https://example.org/5"}))
	require.Error(t, err)
	assert.Equal(t, 1, w.calls, "non-transient errors are not retried")

	w = &failingWriter{err: apperrors.Unavailable("indexing document", errors.New("connection refused"))}
	handle = HandleMessage(w, nil, nil)
	err = handle(context.Background(), nil, encode(t, document.Document{ID: 5, URL: "https://example.org/5"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, 3, w.calls)
}
