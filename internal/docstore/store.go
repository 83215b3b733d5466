package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/cockroachdb/pebble"
)

const DefaultK = 3

var (
	chunkPrefix = []byte("chunk:")
	chunkUpper  = []byte("chunk;")
)

// ErrClosed is returned when the store has been closed
var ErrClosed = errors.New("document store closed")

// Document is one indexed chunk of text
type Document struct {
	Text       string `json:"text"`
	Source     string `json:"source,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// Result is a search hit
type Result struct {
	Document
	Score float64 `json:"score"`
}

// Store keeps document chunks in a pebble database and ranks them by term overlap
type Store struct {
	mu  sync.RWMutex
	db  *pebble.DB
	seq uint64
	log *logger.Logger
}

// Open opens (or creates) the store at path. opts may be nil.
func Open(path string, opts *pebble.Options, log *logger.Logger) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open document store at %s: %w", path, err)
	}

	s := &Store{db: db, log: log}
	if err := s.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("document store opened", "path", path, "next_seq", s.seq)
	return s, nil
}

func (s *Store) loadSeq() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: chunkPrefix, UpperBound: chunkUpper})
	if err != nil {
		return err
	}
	defer iter.Close()
	if iter.Last() {
		n, err := strconv.ParseUint(string(iter.Key()[len(chunkPrefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt chunk key %q: %w", iter.Key(), err)
		}
		s.seq = n
	}
	return iter.Error()
}

// Close flushes and closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ready reports whether the store is open
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Add indexes the given documents and returns how many were written
func (s *Store) Add(ctx context.Context, docs []Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	seq := s.seq
	written := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("marshal document: %w", err)
		}
		seq++
		if err := batch.Set(chunkKey(seq), data, nil); err != nil {
			return 0, err
		}
		written++
	}
	if written == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit documents: %w", err)
	}
	s.seq = seq
	s.log.Debug("documents added", "count", written)
	return written, nil
}

// Clear removes every document
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.DeleteRange(chunkPrefix, chunkUpper, pebble.Sync); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	s.log.Info("document store cleared")
	return nil
}

// Count returns the number of stored chunks
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, ErrClosed
	}
	count := 0
	err := s.scan(ctx, func([]byte, Document) { count++ })
	return count, err
}

// Search returns up to k chunks ranked by relevance to query, best first.
// k is clamped to the number of stored chunks, and chunks sharing no term with the query are not returned.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	if k <= 0 {
		k = DefaultK
	}

	terms := uniqueTerms(query)
	var hits []Result
	total := 0
	err := s.scan(ctx, func(_ []byte, doc Document) {
		total++
		if score := score(terms, doc.Text); score > 0 {
			hits = append(hits, Result{Document: doc, Score: score})
		}
	})
	if err != nil {
		return nil, err
	}
	if k > total {
		k = total
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) scan(ctx context.Context, fn func(key []byte, doc Document)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: chunkPrefix, UpperBound: chunkUpper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var doc Document
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			s.log.Warn("skipping undecodable chunk", "key", string(iter.Key()), "error", err)
			continue
		}
		fn(iter.Key(), doc)
	}
	return iter.Error()
}

func chunkKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", chunkPrefix, seq))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTerms(text string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, t := range tokenize(text) {
		if len([]rune(t)) < 2 || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// score sums a dampened term frequency per matched query term, normalised by chunk length
func score(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	freq := map[string]int{}
	tokens := tokenize(text)
	for _, t := range tokens {
		freq[t]++
	}
	var sum float64
	for _, t := range terms {
		if n := freq[t]; n > 0 {
			sum += 1 + math.Log(float64(n))
		}
	}
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(float64(len(tokens)))
}
