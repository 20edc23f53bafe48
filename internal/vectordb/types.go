package vectordb

import (
	"errors"
	"fmt"
	"time"
)

// Config controls Qdrant client behavior
type Config struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	// Distance metric for new collections (Cosine, Dot, Euclid)
	Distance string `mapstructure:"distance"`
	// Threshold drops hits scoring below it; 0 disables
	Threshold float64       `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ErrCollectionNotFound is returned when a collection does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// DimensionMismatchError is returned when a vector does not fit the collection
type DimensionMismatchError struct {
	Collection        string
	ExpectedDimension int
	ReceivedDimension int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for collection %s: expected %d, got %d",
		e.Collection, e.ExpectedDimension, e.ReceivedDimension)
}

// Point is a vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Text returns the string payload value for key, or "".
func (p ScoredPoint) Text(key string) string {
	s, _ := p.Payload[key].(string)
	return s
}

// Filter matches points whose payload equals every key/value pair.
type Filter map[string]string

func (f Filter) qdrant() map[string]any {
	if len(f) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(f))
	for _, k := range sortedKeys(f) {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": f[k]},
		})
	}
	return map[string]any{"must": must}
}

// CollectionInfo holds the parts of a collection description we use.
type CollectionInfo struct {
	Name        string
	VectorSize  int
	PointsCount int
}
