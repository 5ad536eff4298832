package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

// MaxSuggestions caps the number of completions Suggest returns.
const MaxSuggestions = 5

const maxConflictRetries = 3

type searchIndex struct {
	backend *Backend
	owned   bool
	logger  *slog.Logger

	stopwords []string
	synonyms  [][]string

	mu       sync.Mutex
	ready    bool
	analyzer *Analyzer
	boosts   map[string]float64
}

var _ storage.SearchIndex = (*searchIndex)(nil)

// Option configures a search index.
type Option func(*searchIndex) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *searchIndex) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithAnalyzer overrides the stopwords and synonym groups written into a
// new schema. An existing schema always wins.
func WithAnalyzer(stopwords []string, synonyms [][]string) Option {
	return func(s *searchIndex) error {
		s.stopwords = stopwords
		s.synonyms = synonyms
		return nil
	}
}

// NewSearchIndex creates a search index on an open backend. The caller keeps
// ownership of the backend.
func NewSearchIndex(backend *Backend, opts ...Option) (storage.SearchIndex, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	s := &searchIndex{
		backend:   backend,
		logger:    backend.logger,
		stopwords: DefaultStopwords,
		synonyms:  DefaultSynonyms,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OpenSearchIndex opens (or creates) an index stored under dir.
func OpenSearchIndex(dir string, opts ...Option) (storage.SearchIndex, error) {
	return open(dir, false, opts...)
}

// NewMemorySearchIndex creates an index backed by an in-memory database.
func NewMemorySearchIndex(opts ...Option) (storage.SearchIndex, error) {
	return open("", true, opts...)
}

func open(dir string, inMemory bool, opts ...Option) (storage.SearchIndex, error) {
	probe := &searchIndex{logger: slog.Default()}
	for _, opt := range opts {
		_ = opt(probe)
	}
	backend, err := OpenBackend(dir, inMemory, probe.logger)
	if err != nil {
		return nil, err
	}
	idx, err := NewSearchIndex(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	idx.(*searchIndex).owned = true
	return idx, nil
}

func (s *searchIndex) EnsureSchema(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	var sc *schema
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			sc = &schema{
				Version:   analyzerVersion,
				Stopwords: s.stopwords,
				Synonyms:  s.synonyms,
				Boosts:    defaultBoosts,
			}
			s.logger.Info("creating search index schema", "version", sc.Version)
			return tx.Set([]byte(schemaKey), sc.marshal())
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sc, err = unmarshalSchema(val)
			return err
		})
	}, true)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if sc.Version != analyzerVersion {
		s.logger.Warn("search index schema version differs, reindex recommended",
			"stored", sc.Version, "current", analyzerVersion)
	}

	s.analyzer = NewAnalyzer(sc.Stopwords, sc.Synonyms)
	s.boosts = sc.Boosts
	s.ready = true
	return nil
}

func (s *searchIndex) Upsert(ctx context.Context, doc core.IndexDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id cannot be empty", storage.ErrInvalidQuery)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	var err error
	for range maxConflictRetries {
		if err = s.upsert(&doc); !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// upsert replaces the document and all of its secondary keys in one transaction.
func (s *searchIndex) upsert(doc *core.IndexDocument) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := removeSecondary(tx, doc.ID); err != nil {
			return err
		}
		if err := tx.Set(makeDocKey(doc.ID), storage.MarshalIndexDocument(doc)); err != nil {
			return err
		}

		var secondary []string
		for field, text := range fieldTexts(doc) {
			for term, tf := range s.analyzer.Terms(text) {
				key := makePostingKey(field, term, doc.ID)
				if err := tx.Set(key, storage.MarshalInt(tf)); err != nil {
					return err
				}
				if err := tx.Set(makeVocabKey(term), []byte{}); err != nil {
					return err
				}
				secondary = append(secondary, string(key))
			}
		}

		words := tokenize(doc.Title)
		for i := range words {
			key := makeCompletionKey(strings.Join(words[i:], " "), doc.ID)
			if err := tx.Set(key, []byte(doc.Title)); err != nil {
				return err
			}
			secondary = append(secondary, string(key))
		}

		return tx.Set(makeTermListKey(doc.ID), storage.MarshalStrings(secondary))
	}, true)
}

func (s *searchIndex) Get(ctx context.Context, id string) (*core.IndexDocument, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var doc *core.IndexDocument
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = loadDoc(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *searchIndex) Delete(ctx context.Context, id string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := removeSecondary(tx, id); err != nil {
			return err
		}
		return tx.Delete(makeDocKey(id))
	}, true)
}

func (s *searchIndex) IDs(ctx context.Context) ([]string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var ids []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, []byte(docPrefix), func(key []byte) error {
			ids = append(ids, string(key[len(docPrefix):]))
			return nil
		})
	}, false)
	return ids, err
}

func (s *searchIndex) Search(ctx context.Context, q storage.Query) (*storage.SearchResult, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if q.Size < 0 || (!q.FiledAfter.IsZero() && !q.FiledBefore.IsZero() && q.FiledBefore.Before(q.FiledAfter)) {
		return nil, storage.ErrInvalidQuery
	}
	size := q.Size
	if size == 0 {
		size = storage.DefaultSearchSize
	}

	terms := s.analyzer.QueryTerms(q.Text)
	var matched []scoredDoc
	highlightTerms := make(map[string]struct{})

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var scores map[string]float64
		if len(terms) == 0 {
			scores = make(map[string]float64)
			if err := scanKeys(tx, []byte(docPrefix), func(key []byte) error {
				scores[string(key[len(docPrefix):])] = 0
				return nil
			}); err != nil {
				return err
			}
		} else {
			var err error
			scores, err = s.score(ctx, tx, terms, highlightTerms)
			if err != nil {
				return err
			}
		}

		for id, score := range scores {
			doc, err := loadDoc(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if matchesFilters(doc, &q) {
				matched = append(matched, scoredDoc{doc: doc, score: score})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matched, func(a, b scoredDoc) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := b.doc.DateFiled.Compare(a.doc.DateFiled); c != 0 {
			return c
		}
		return cmp.Compare(a.doc.ID, b.doc.ID)
	})

	result := &storage.SearchResult{
		Total:  len(matched),
		Facets: buildFacets(matched),
	}
	for _, m := range matched[:min(size, len(matched))] {
		result.Hits = append(result.Hits, storage.Hit{
			ID:         m.doc.ID,
			Title:      m.doc.Title,
			FileName:   m.doc.FileName,
			FileType:   m.doc.FileType,
			Court:      m.doc.Court,
			DateFiled:  m.doc.DateFiled,
			Score:      m.score,
			Highlights: highlight(m.doc, s.analyzer, highlightTerms),
		})
	}
	return result, nil
}

// score ranks documents by boosted tf-idf over every field. Each query term
// also matches vocabulary terms within its edit budget at half weight.
func (s *searchIndex) score(ctx context.Context, tx *badger.Txn, terms []string, matchedTerms map[string]struct{}) (map[string]float64, error) {
	total := 0
	if err := scanKeys(tx, []byte(docPrefix), func([]byte) error {
		total++
		return nil
	}); err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		expansions, err := expand(tx, term)
		if err != nil {
			return nil, err
		}
		for variant, weight := range expansions {
			for _, field := range fields() {
				postings, err := readPostings(tx, field, variant)
				if err != nil {
					return nil, err
				}
				if len(postings) == 0 {
					continue
				}
				matchedTerms[variant] = struct{}{}
				idf := math.Log(1 + float64(total)/float64(len(postings)))
				for id, tf := range postings {
					scores[id] += s.boosts[field] * weight * idf * (1 + math.Log(float64(tf)))
				}
			}
		}
	}
	return scores, nil
}

func (s *searchIndex) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}
	words := tokenize(prefix)
	if len(words) == 0 {
		return nil, nil
	}
	keyPrefix := append([]byte(completionPrefix), strings.Join(words, " ")...)

	var titles []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(titles) < limit; iter.Next() {
			val, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if title := string(val); !slices.Contains(titles, title) {
				titles = append(titles, title)
			}
		}
		return nil
	}, false)
	return titles, err
}

func (s *searchIndex) Close() error {
	if s.owned {
		return s.backend.Close()
	}
	return nil
}

func (s *searchIndex) check(ctx context.Context) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

type scoredDoc struct {
	doc   *core.IndexDocument
	score float64
}

func fieldTexts(doc *core.IndexDocument) map[string]string {
	entities := make([]string, len(doc.Entities))
	for i, e := range doc.Entities {
		entities[i] = e.Name
	}
	citations := make([]string, len(doc.Citations))
	for i, c := range doc.Citations {
		citations[i] = c.Cite
	}
	return map[string]string{
		fieldTitle:     doc.Title,
		fieldSummary:   doc.Summary,
		fieldContent:   doc.Content,
		fieldEntities:  strings.Join(entities, " "),
		fieldCitations: strings.Join(citations, " "),
		fieldConcepts:  strings.Join(doc.Concepts, " "),
	}
}

func loadDoc(tx *badger.Txn, id string) (*core.IndexDocument, error) {
	item, err := tx.Get(makeDocKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc *core.IndexDocument
	err = item.Value(func(val []byte) error {
		doc, err = storage.UnmarshalIndexDocument(val)
		return err
	})
	return doc, err
}

// removeSecondary deletes the postings and completion keys written for id.
func removeSecondary(tx *badger.Txn, id string) error {
	listKey := makeTermListKey(id)
	item, err := tx.Get(listKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var keys []string
	err = item.Value(func(val []byte) error {
		keys, err = storage.UnmarshalStrings(val)
		return err
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := tx.Delete([]byte(key)); err != nil {
			return err
		}
	}
	return tx.Delete(listKey)
}

func readPostings(tx *badger.Txn, field, term string) (map[string]int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePostingPrefix(field, term)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	postings := make(map[string]int)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		var tf int
		err := item.Value(func(val []byte) error {
			var err error
			tf, err = storage.UnmarshalInt(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		postings[idFromKey(item.Key())] = tf
	}
	return postings, nil
}

// expand returns term plus every vocabulary term within its edit budget.
func expand(tx *badger.Txn, term string) (map[string]float64, error) {
	out := map[string]float64{term: 1}
	k := maxEdits(term)
	if k == 0 {
		return out, nil
	}
	err := scanKeys(tx, []byte(vocabPrefix), func(key []byte) error {
		candidate := string(key[len(vocabPrefix):])
		if candidate != term && withinDistance(term, candidate, k) {
			out[candidate] = 0.5
		}
		return nil
	})
	return out, err
}

func matchesFilters(doc *core.IndexDocument, q *storage.Query) bool {
	if len(q.FileTypes) > 0 && !slices.Contains(q.FileTypes, doc.FileType) {
		return false
	}
	if q.Court != "" && !strings.EqualFold(q.Court, doc.Court) {
		return false
	}
	if !q.FiledAfter.IsZero() && (doc.DateFiled.IsZero() || doc.DateFiled.Before(q.FiledAfter)) {
		return false
	}
	if !q.FiledBefore.IsZero() && (doc.DateFiled.IsZero() || doc.DateFiled.After(q.FiledBefore)) {
		return false
	}
	return true
}
