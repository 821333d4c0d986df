// Package postgres is the PostgreSQL implementation of the ranking engine's
// stores: lexical statistics and postings, link records, document metadata
// and the persisted PageRank/HITS score tables.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
)

// Schema creates every table the store reads or writes.
const Schema = `
CREATE TABLE IF NOT EXISTS pages (
    doc_id  BIGINT PRIMARY KEY,
    url     TEXT NOT NULL,
    title   TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS pages_cleaned (
    doc_id BIGINT PRIMARY KEY REFERENCES pages (doc_id) ON DELETE CASCADE,
    url    TEXT NOT NULL,
    links  TEXT[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS doc_lengths (
    doc_id BIGINT PRIMARY KEY REFERENCES pages (doc_id) ON DELETE CASCADE,
    length INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS inverted_index (
    term      TEXT NOT NULL,
    doc_id    BIGINT NOT NULL REFERENCES pages (doc_id) ON DELETE CASCADE,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (term, doc_id)
);
CREATE INDEX IF NOT EXISTS inverted_index_doc_id ON inverted_index (doc_id);
CREATE TABLE IF NOT EXISTS pagerank (
    doc_id BIGINT PRIMARY KEY,
    score  DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS hits (
    doc_id    BIGINT PRIMARY KEY,
    hub       DOUBLE PRECISION NOT NULL,
    authority DOUBLE PRECISION NOT NULL
);
`

type Store struct {
	db     *pkgpostgres.Client
	logger *slog.Logger
}

func New(db *pkgpostgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return apperrors.Unavailable("creating schema", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// CorpusStats returns N and avgdl from doc_lengths.
func (s *Store) CorpusStats(ctx context.Context) (ranker.CorpusStats, error) {
	var stats ranker.CorpusStats
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(length), 0) FROM doc_lengths`,
	).Scan(&stats.DocCount, &stats.AvgDocLength)
	if err != nil {
		return ranker.CorpusStats{}, apperrors.Unavailable("querying corpus stats", err)
	}
	return stats, nil
}

// Postings fetches the postings of every term in one round trip, joined with
// the document lengths BM25 needs.
func (s *Store) Postings(ctx context.Context, terms []string) (map[string][]ranker.Posting, error) {
	out := make(map[string][]ranker.Posting, len(terms))
	if len(terms) == 0 {
		return out, nil
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT i.term, i.doc_id, i.frequency, d.length
		FROM inverted_index i
		JOIN doc_lengths d ON d.doc_id = i.doc_id
		WHERE i.term = ANY($1)
		ORDER BY i.term, i.doc_id`,
		pq.Array(terms),
	)
	if err != nil {
		return nil, apperrors.Unavailable("querying postings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var term string
		var p ranker.Posting
		if err := rows.Scan(&term, &p.DocID, &p.Frequency, &p.DocLength); err != nil {
			return nil, apperrors.Unavailable("scanning posting", err)
		}
		out[term] = append(out[term], p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("iterating postings", err)
	}
	return out, nil
}

func (s *Store) DocumentFrequency(ctx context.Context, term string) (int, error) {
	var df int
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inverted_index WHERE term = $1`, term,
	).Scan(&df)
	if err != nil {
		return 0, apperrors.Unavailable("querying document frequency", err)
	}
	return df, nil
}

// LinkRecords returns every document's outbound links ordered by doc id.
func (s *Store) LinkRecords(ctx context.Context) ([]graph.Record, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT doc_id, url, links FROM pages_cleaned ORDER BY doc_id`,
	)
	if err != nil {
		return nil, apperrors.Unavailable("querying link records", err)
	}
	defer rows.Close()

	var records []graph.Record
	for rows.Next() {
		var r graph.Record
		var links []string
		if err := rows.Scan(&r.DocID, &r.URL, pq.Array(&links)); err != nil {
			return nil, apperrors.Unavailable("scanning link record", err)
		}
		r.Links = links
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("iterating link records", err)
	}
	return records, nil
}

// Metadata returns url and title for the given ids. Unknown ids are absent
// from the result.
func (s *Store) Metadata(ctx context.Context, ids []int64) (map[int64]document.Meta, error) {
	out := make(map[int64]document.Meta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT doc_id, url, title FROM pages WHERE doc_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, apperrors.Unavailable("querying metadata", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var m document.Meta
		if err := rows.Scan(&id, &m.URL, &m.Title); err != nil {
			return nil, apperrors.Unavailable("scanning metadata", err)
		}
		out[id] = m
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("iterating metadata", err)
	}
	return out, nil
}

// IndexDocument writes a document and its postings in one transaction,
// replacing any earlier version. It returns the document length in tokens.
func (s *Store) IndexDocument(ctx context.Context, doc document.Document) (int, error) {
	terms := tokenizer.Terms(doc.Text)
	freq := tokenizer.Frequencies(terms)
	sorted := make([]string, 0, len(freq))
	for term := range freq {
		sorted = append(sorted, term)
	}
	sort.Strings(sorted)

	links := doc.Links
	if links == nil {
		links = []string{}
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pages (doc_id, url, title, content) VALUES ($1, $2, $3, $4)
			ON CONFLICT (doc_id) DO UPDATE SET url = EXCLUDED.url, title = EXCLUDED.title, content = EXCLUDED.content`,
			doc.ID, doc.URL, doc.Title, doc.Text,
		); err != nil {
			return fmt.Errorf("upserting page: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pages_cleaned (doc_id, url, links) VALUES ($1, $2, $3)
			ON CONFLICT (doc_id) DO UPDATE SET url = EXCLUDED.url, links = EXCLUDED.links`,
			doc.ID, doc.URL, pq.Array(links),
		); err != nil {
			return fmt.Errorf("upserting links: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO doc_lengths (doc_id, length) VALUES ($1, $2)
			ON CONFLICT (doc_id) DO UPDATE SET length = EXCLUDED.length`,
			doc.ID, len(terms),
		); err != nil {
			return fmt.Errorf("upserting length: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inverted_index WHERE doc_id = $1`, doc.ID); err != nil {
			return fmt.Errorf("clearing postings: %w", err)
		}
		return copyRows(ctx, tx, "inverted_index", []string{"term", "doc_id", "frequency"}, len(sorted), func(i int) []any {
			return []any{sorted[i], doc.ID, freq[sorted[i]]}
		})
	})
	if err != nil {
		return 0, apperrors.Unavailable("indexing document", err)
	}
	return len(terms), nil
}

func (s *Store) LoadPageRank(ctx context.Context) (map[int64]float64, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT doc_id, score FROM pagerank`)
	if err != nil {
		return nil, apperrors.Unavailable("loading pagerank", err)
	}
	defer rows.Close()

	scores := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, apperrors.Unavailable("scanning pagerank", err)
		}
		scores[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("iterating pagerank", err)
	}
	return scores, nil
}

func (s *Store) LoadHits(ctx context.Context) (hubs, authorities map[int64]float64, err error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT doc_id, hub, authority FROM hits`)
	if err != nil {
		return nil, nil, apperrors.Unavailable("loading hits", err)
	}
	defer rows.Close()

	hubs = make(map[int64]float64)
	authorities = make(map[int64]float64)
	for rows.Next() {
		var id int64
		var hub, auth float64
		if err := rows.Scan(&id, &hub, &auth); err != nil {
			return nil, nil, apperrors.Unavailable("scanning hits", err)
		}
		hubs[id] = hub
		authorities[id] = auth
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.Unavailable("iterating hits", err)
	}
	return hubs, authorities, nil
}

// ReplacePageRank swaps the pagerank table contents in one transaction.
func (s *Store) ReplacePageRank(ctx context.Context, scores map[int64]float64) error {
	ids := sortedIDs(scores)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `TRUNCATE pagerank`); err != nil {
			return fmt.Errorf("truncating pagerank: %w", err)
		}
		return copyRows(ctx, tx, "pagerank", []string{"doc_id", "score"}, len(ids), func(i int) []any {
			return []any{ids[i], scores[ids[i]]}
		})
	})
	if err != nil {
		return apperrors.Unavailable("replacing pagerank", err)
	}
	s.logger.Info("pagerank table replaced", "rows", len(ids))
	return nil
}

// ReplaceHits swaps the hits table contents in one transaction. Ids missing
// from hubs get a zero hub score.
func (s *Store) ReplaceHits(ctx context.Context, hubs, authorities map[int64]float64) error {
	ids := sortedIDs(authorities)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `TRUNCATE hits`); err != nil {
			return fmt.Errorf("truncating hits: %w", err)
		}
		return copyRows(ctx, tx, "hits", []string{"doc_id", "hub", "authority"}, len(ids), func(i int) []any {
			id := ids[i]
			return []any{id, hubs[id], authorities[id]}
		})
	})
	if err != nil {
		return apperrors.Unavailable("replacing hits", err)
	}
	s.logger.Info("hits table replaced", "rows", len(ids))
	return nil
}

func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, row func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("preparing copy into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("copying row into %s: %w", table, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy into %s: %w", table, err)
	}
	return nil
}

func sortedIDs(scores map[int64]float64) []int64 {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
