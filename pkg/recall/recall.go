// Package recall keeps a similarity corpus of past scans in an embedded
// chromem vector store. It exists for investigation ("what else looked
// like this input?") and never feeds back into scoring or decisions.
package recall

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/gatescan/gatescan/pkg/report"
)

const (
	collectionName = "scan_corpus"

	// embeddingDim is the hashed-trigram vector width. Small enough to
	// stay cheap, wide enough that unrelated inputs rarely collide on
	// every bucket.
	embeddingDim = 256

	// maxRecordRunes bounds how much normalized text is stored per scan.
	maxRecordRunes = 2000

	defaultNeighbors = 5
)

// Neighbor is one similar past scan.
type Neighbor struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Decision   string  `json:"decision"`
	Score      float64 `json:"score"`
	Timestamp  string  `json:"timestamp"`
	Similarity float32 `json:"similarity"`
}

// Corpus is the vector store of past scans. In-memory by default, backed
// by a directory when a path is configured.
type Corpus struct {
	db         *chromem.DB
	collection *chromem.Collection
	mu         sync.RWMutex
}

// New opens the corpus. An empty path keeps it in memory for the life of
// the process; otherwise documents persist under path.
func New(path string) (*Corpus, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("opening recall store: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embedText)
	if err != nil {
		return nil, fmt.Errorf("opening recall collection: %w", err)
	}
	return &Corpus{db: db, collection: collection}, nil
}

// Count returns the number of recorded scans.
func (c *Corpus) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection.Count()
}

// Record stores one finished scan. Error reports carry no normalized
// text and are not recorded.
func (c *Corpus) Record(ctx context.Context, rep *report.Report, normalized string) error {
	if rep == nil || rep.Error != nil || strings.TrimSpace(normalized) == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc := chromem.Document{
		ID:      rep.ID,
		Content: truncateRunes(normalized, maxRecordRunes),
		Metadata: map[string]string{
			"decision":  string(rep.Decision),
			"score":     strconv.FormatFloat(rep.Score, 'f', 4, 64),
			"timestamp": rep.Timestamp,
		},
	}
	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("recording scan: %w", err)
	}
	return nil
}

// Similar returns the k nearest past scans for text, best first. k is
// clamped to the corpus size; an empty corpus yields no neighbors and no
// error.
func (c *Corpus) Similar(ctx context.Context, text string, k int) ([]Neighbor, error) {
	if k < 1 {
		k = defaultNeighbors
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	count := c.collection.Count()
	if count == 0 {
		return []Neighbor{}, nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.Query(ctx, strings.ToLower(text), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying recall corpus: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		score, _ := strconv.ParseFloat(r.Metadata["score"], 64)
		neighbors = append(neighbors, Neighbor{
			ID:         r.ID,
			Text:       r.Content,
			Decision:   r.Metadata["decision"],
			Score:      score,
			Timestamp:  r.Metadata["timestamp"],
			Similarity: r.Similarity,
		})
	}
	return neighbors, nil
}

// embedText is the offline embedding function: character trigrams hashed
// into a fixed-width vector, L2-normalized. Deterministic and
// dependency-free, so the corpus works without any model or service.
func embedText(_ context.Context, text string) ([]float32, error) {
	return lexicalEmbedding(text), nil
}

func lexicalEmbedding(text string) []float32 {
	vec := make([]float32, embeddingDim)
	runes := []rune(strings.ToLower(text))

	if len(runes) >= 3 {
		for i := 0; i+3 <= len(runes); i++ {
			vec[bucket(string(runes[i:i+3]))]++
		}
	} else if len(runes) > 0 {
		vec[bucket(string(runes))]++
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func bucket(gram string) int {
	h := fnv.New32a()
	h.Write([]byte(gram))
	return int(h.Sum32() % embeddingDim)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
