package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Vector search keeps guides above this similarity.
const relevanceThreshold = 0.1

// tfidfEmbedder turns guide text into TF-IDF vectors over a corpus vocabulary
type tfidfEmbedder struct {
	vocabulary map[string]int
	idf        map[string]float64
}

func newTFIDFEmbedder() *tfidfEmbedder {
	return &tfidfEmbedder{
		vocabulary: make(map[string]int),
		idf:        make(map[string]float64),
	}
}

func (e *tfidfEmbedder) buildVocabulary(guides []Guide) {
	e.vocabulary = make(map[string]int)
	e.idf = make(map[string]float64)

	df := make(map[string]int)
	totalDocs := len(guides)

	vocabIndex := 0
	for _, guide := range guides {
		seen := make(map[string]bool)
		for _, token := range tokenize(guide.Content) {
			if _, exists := e.vocabulary[token]; !exists {
				e.vocabulary[token] = vocabIndex
				vocabIndex++
			}
			if !seen[token] {
				df[token]++
				seen[token] = true
			}
		}
	}

	for token, freq := range df {
		e.idf[token] = math.Log(float64(totalDocs) / float64(freq))
	}
}

func (e *tfidfEmbedder) embed(text string) []float32 {
	tokens := tokenize(text)
	vector := make([]float32, len(e.vocabulary))
	if len(tokens) == 0 {
		return vector
	}

	tf := make(map[string]int)
	for _, token := range tokens {
		tf[token]++
	}

	for token, freq := range tf {
		if idx, exists := e.vocabulary[token]; exists {
			vector[idx] = float32(float64(freq) / float64(len(tokens)) * e.idf[token])
		}
	}

	return vector
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// tokenize lowercases and splits on anything that is not a letter or
// digit, then drops numbers and words of one or two characters.
// Rune-aware so Cyrillic text tokenizes the same as Latin.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) <= 2 || isNumber(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// GuideWithScore pairs a guide with its query similarity
type GuideWithScore struct {
	Guide Guide
	Score float32
}

// VectorLibrary extends Library with TF-IDF similarity search
type VectorLibrary struct {
	*Library
	embedder *tfidfEmbedder
	vectors  map[string][]float32
}

// NewVectorLibrary creates a guide library with vector search
func NewVectorLibrary(logger *logrus.Logger) *VectorLibrary {
	return &VectorLibrary{
		Library:  NewLibrary(logger),
		embedder: newTFIDFEmbedder(),
		vectors:  make(map[string][]float32),
	}
}

// Load reads the guides and builds their vectors
func (v *VectorLibrary) Load(ctx context.Context, dir string) error {
	if err := v.Library.Load(ctx, dir); err != nil {
		return err
	}

	guides := v.All()
	v.embedder.buildVocabulary(guides)

	v.vectors = make(map[string][]float32, len(guides))
	for _, guide := range guides {
		v.vectors[guide.ID] = v.embedder.embed(guide.Content)
	}

	v.logger.WithField("vectors", len(v.vectors)).Info("Guide vectors built")
	return nil
}

// Refresh reloads the guides and rebuilds their vectors
func (v *VectorLibrary) Refresh(ctx context.Context) error {
	return v.Load(ctx, v.dir)
}

// VectorSearch returns the guides most similar to the query
func (v *VectorLibrary) VectorSearch(ctx context.Context, query string, limit int) ([]GuideWithScore, error) {
	queryVector := v.embedder.embed(query)

	v.guidesRW.RLock()
	defer v.guidesRW.RUnlock()

	var results []GuideWithScore
	for id, vector := range v.vectors {
		guide, exists := v.guides[id]
		if !exists {
			continue
		}
		if score := cosineSimilarity(queryVector, vector); score > relevanceThreshold {
			results = append(results, GuideWithScore{Guide: *guide, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// BuildContext assembles reference material for a question, or "" when
// nothing relevant is loaded
func (v *VectorLibrary) BuildContext(ctx context.Context, query string, limit int) string {
	results, err := v.VectorSearch(ctx, query, limit)
	if err != nil || len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n%s", r.Guide.Title, strings.TrimSpace(r.Guide.Content))
	}
	return b.String()
}
