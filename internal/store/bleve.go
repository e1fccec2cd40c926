package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// seqField records insertion order for tie-breaking.
	seqField = "insert_seq"

	bleveExt = ".bleve"

	// chineseAnalyzerName indexes every CJK rune and every adjacent pair,
	// so one-character words match as well as longer ones.
	chineseAnalyzerName  = "chatsearch_cjk"
	cjkUnigramFilterName = "chatsearch_cjk_bigram_unigram"
)

var (
	internalFieldsKey   = []byte("chatsearch:fields")
	internalLanguageKey = []byte("chatsearch:language")
)

// BleveStore keeps one Bleve index per name, in memory or under a directory.
type BleveStore struct {
	mu       sync.RWMutex
	basePath string
	language string
	indexes  map[string]*bleveIndex
	closed   bool
}

type bleveIndex struct {
	// mu serializes writes so the existence check and insert are atomic.
	mu     sync.Mutex
	idx    bleve.Index
	fields []Field
	seq    uint64
}

var _ IndexStore = (*BleveStore)(nil)

// NewBleveStore creates a store rooted at basePath.
// An empty basePath keeps every index in memory.
func NewBleveStore(basePath, language string) (*BleveStore, error) {
	if basePath != "" {
		if err := os.MkdirAll(basePath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, err)
		}
	}
	return &BleveStore{
		basePath: basePath,
		language: normalizeLanguage(language, LanguageChinese),
		indexes:  make(map[string]*bleveIndex),
	}, nil
}

// analyzerFor maps a language to a registered Bleve analyzer.
func analyzerFor(language string) string {
	if language == LanguageEnglish {
		return en.AnalyzerName
	}
	return chineseAnalyzerName
}

func normalizeLanguage(language, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case LanguageChinese:
		return LanguageChinese
	case LanguageEnglish:
		return LanguageEnglish
	default:
		return fallback
	}
}

func validateIndexName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid index name %q", name)
	}
	return nil
}

// buildMapping declares one document type per language so that each
// document is analyzed in the language it was added with.
func buildMapping(fields []Field, defaultLanguage string) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomTokenFilter(cjkUnigramFilterName, map[string]interface{}{
		"type":           cjk.BigramName,
		"output_unigram": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add cjk token filter: %w", err)
	}
	err = im.AddCustomAnalyzer(chineseAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			cjk.WidthName,
			lowercase.Name,
			cjkUnigramFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add cjk analyzer: %w", err)
	}

	for _, lang := range []string{LanguageChinese, LanguageEnglish} {
		im.AddDocumentMapping(lang, documentMapping(fields, analyzerFor(lang)))
	}
	im.DefaultMapping = documentMapping(fields, analyzerFor(defaultLanguage))
	im.DefaultAnalyzer = analyzerFor(defaultLanguage)
	im.DefaultType = defaultLanguage
	return im, nil
}

func documentMapping(fields []Field, analyzer string) *mapping.DocumentMapping {
	dm := bleve.NewDocumentStaticMapping()
	for _, f := range fields {
		var fm *mapping.FieldMapping
		if f.Type == FieldNumeric {
			fm = bleve.NewNumericFieldMapping()
		} else {
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = analyzer
		}
		fm.Store = true
		dm.AddFieldMappingsAt(f.Name, fm)
	}

	seq := bleve.NewNumericFieldMapping()
	seq.Store = false
	dm.AddFieldMappingsAt(seqField, seq)
	return dm
}

func (s *BleveStore) pathFor(name string) string {
	return filepath.Join(s.basePath, name+bleveExt)
}

// CreateIndex creates the named index or returns ErrIndexExists.
func (s *BleveStore) CreateIndex(ctx context.Context, name string, fields []Field) error {
	if err := validateIndexName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.indexes[name]; ok {
		return ErrIndexExists
	}

	if s.basePath != "" && dirExists(s.pathFor(name)) {
		ix, err := s.openLocked(name)
		if err != nil {
			return err
		}
		s.indexes[name] = ix
		return ErrIndexExists
	}

	im, err := buildMapping(fields, s.language)
	if err != nil {
		return err
	}

	var idx bleve.Index
	if s.basePath == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = bleve.New(s.pathFor(name), im)
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}

	meta, err := json.Marshal(fields)
	if err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	if err := idx.SetInternal(internalFieldsKey, meta); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to store fields: %w", err)
	}
	if err := idx.SetInternal(internalLanguageKey, []byte(s.language)); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to store language: %w", err)
	}

	s.indexes[name] = &bleveIndex{idx: idx, fields: fields}

	slog.Debug("bleve_index_created",
		slog.String("index", name),
		slog.Bool("in_memory", s.basePath == ""))
	return nil
}

// openLocked opens an on-disk index. Must be called with s.mu held.
func (s *BleveStore) openLocked(name string) (*bleveIndex, error) {
	path := s.pathFor(name)
	if err := validateIndexIntegrity(path); err != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("index %s is corrupted: %w", name, err)
	}

	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}

	raw, err := idx.GetInternal(internalFieldsKey)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to read fields of %s: %w", name, err)
	}
	var fields []Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to decode fields of %s: %w", name, err)
	}

	count, err := idx.DocCount()
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to count documents of %s: %w", name, err)
	}

	return &bleveIndex{idx: idx, fields: fields, seq: count}, nil
}

// validateIndexIntegrity checks index_meta.json before handing the
// directory to bleve.Open.
func validateIndexIntegrity(path string) error {
	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func (s *BleveStore) lookup(name string) (*bleveIndex, error) {
	s.mu.RLock()
	ix, ok := s.indexes[name]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if ok {
		return ix, nil
	}
	if s.basePath == "" || validateIndexName(name) != nil || !dirExists(s.pathFor(name)) {
		return nil, ErrIndexNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ix, ok := s.indexes[name]; ok {
		return ix, nil
	}
	ix, err := s.openLocked(name)
	if err != nil {
		return nil, err
	}
	s.indexes[name] = ix
	return ix, nil
}

// AddDocument indexes doc unless docID is already present.
func (s *BleveStore) AddDocument(ctx context.Context, index, docID string, doc Document, language string) error {
	ix, err := s.lookup(index)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	existing, err := ix.idx.Document(docID)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", docID, err)
	}
	if existing != nil {
		return ErrDocumentExists
	}

	body := make(map[string]any, len(ix.fields)+2)
	for _, f := range ix.fields {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}
		if f.Type == FieldNumeric {
			body[f.Name] = float64(doc.Int(f.Name))
		} else {
			body[f.Name] = fmt.Sprint(v)
		}
	}
	body[seqField] = float64(ix.seq)
	body["_type"] = normalizeLanguage(language, s.language)

	batch := ix.idx.NewBatch()
	if err := batch.Index(docID, body); err != nil {
		return fmt.Errorf("failed to index document %s: %w", docID, err)
	}
	if err := ix.idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	ix.seq++
	return nil
}

// Query runs a disjunction of boosted match queries over the searchable
// fields. Within a field every query term must match.
func (s *BleveStore) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()

	ix, err := s.lookup(req.Index)
	if err != nil {
		return nil, err
	}

	language := normalizeLanguage(req.Language, s.language)
	disjunction := bleve.NewDisjunctionQuery()
	names := make([]string, 0, len(ix.fields))
	for _, f := range ix.fields {
		names = append(names, f.Name)
		if !f.Searchable() {
			continue
		}
		mq := bleve.NewMatchQuery(req.Text)
		mq.SetField(f.Name)
		mq.SetBoost(f.Weight)
		mq.Analyzer = analyzerFor(language)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		disjunction.AddQuery(mq)
	}
	if len(disjunction.Disjuncts) == 0 {
		return &QueryResult{Duration: time.Since(start)}, nil
	}

	count := req.Count
	if count < 0 {
		count = 0
	}
	sr := bleve.NewSearchRequestOptions(disjunction, count, max(req.Start, 0), false)
	sr.Fields = names
	if req.SortField != "" {
		order := req.SortField
		if req.SortDesc {
			order = "-" + order
		}
		sr.SortBy([]string{order, seqField})
	} else {
		sr.SortBy([]string{"-_score", seqField})
	}

	res, err := ix.idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{DocID: h.ID, Fields: decodeFields(ix.fields, h.Fields)})
	}

	return &QueryResult{
		Hits:     hits,
		Total:    int(res.Total),
		Duration: time.Since(start),
	}, nil
}

func decodeFields(fields []Field, stored map[string]any) Document {
	doc := make(Document, len(fields))
	for _, f := range fields {
		v, ok := stored[f.Name]
		if !ok {
			continue
		}
		if f.Type == FieldNumeric {
			if n, ok := v.(float64); ok {
				doc[f.Name] = int64(n)
			}
			continue
		}
		if s, ok := v.(string); ok {
			doc[f.Name] = s
		}
	}
	return doc
}

// Stats returns document counts for every known index.
func (s *BleveStore) Stats(ctx context.Context) ([]IndexStats, error) {
	names, err := s.indexNames()
	if err != nil {
		return nil, err
	}

	stats := make([]IndexStats, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ix, err := s.lookup(name)
		if err != nil {
			return nil, err
		}
		n, err := ix.idx.DocCount()
		if err != nil {
			return nil, err
		}
		stats = append(stats, IndexStats{Name: name, Documents: int(n)})
	}
	return stats, nil
}

func (s *BleveStore) indexNames() ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.indexes))
	for name := range s.indexes {
		seen[name] = struct{}{}
	}
	s.mu.RUnlock()

	if s.basePath != "" {
		entries, err := os.ReadDir(s.basePath)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", s.basePath, err)
		}
		for _, e := range entries {
			if e.IsDir() && strings.HasSuffix(e.Name(), bleveExt) {
				seen[strings.TrimSuffix(e.Name(), bleveExt)] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every open index.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for name, ix := range s.indexes {
		if err := ix.idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index %s: %w", name, err)
		}
	}
	s.indexes = nil
	return firstErr
}
