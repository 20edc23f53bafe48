// Package vectordbtest provides an in-memory Qdrant stand-in for tests.
package vectordbtest

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
)

type point struct {
	id      string
	vector  []float32
	payload map[string]any
}

type collection struct {
	size   int
	points map[string]point
}

// Server is a fake Qdrant speaking the subset of the REST API the client uses.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string]*collection
	failSearch  bool
}

// NewServer starts a fake Qdrant. Callers must Close it.
func NewServer() *Server {
	s := &Server{collections: map[string]*collection{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections", s.list)
	mux.HandleFunc("GET /collections/{name}", s.info)
	mux.HandleFunc("PUT /collections/{name}", s.create)
	mux.HandleFunc("DELETE /collections/{name}", s.drop)
	mux.HandleFunc("PUT /collections/{name}/points", s.upsert)
	mux.HandleFunc("POST /collections/{name}/points/query", s.query)
	mux.HandleFunc("POST /collections/{name}/points/count", s.count)
	s.Server = httptest.NewServer(mux)
	return s
}

// FailSearch makes every query return 500 while fail is true.
func (s *Server) FailSearch(fail bool) {
	s.mu.Lock()
	s.failSearch = fail
	s.mu.Unlock()
}

// Points returns the payloads stored in name.
func (s *Server) Points(name string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[name]
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.points))
	for id := range c.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.points[id].payload)
	}
	return out
}

// HasCollection reports whether name exists.
func (s *Server) HasCollection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok
}

func reply(w http.ResponseWriter, status int, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *collection {
	c := s.collections[r.PathValue("name")]
	if c == nil {
		reply(w, http.StatusNotFound, nil)
	}
	return c
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]map[string]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, map[string]string{"name": n})
	}
	reply(w, http.StatusOK, map[string]any{"collections": names})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lookup(w, r)
	if c == nil {
		return
	}
	reply(w, http.StatusOK, map[string]any{
		"points_count": len(c.points),
		"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": c.size}}},
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Vectors struct {
			Size int `json:"size"`
		} `json:"vectors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Vectors.Size <= 0 {
		reply(w, http.StatusBadRequest, nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[r.PathValue("name")] = &collection{size: body.Vectors.Size, points: map[string]point{}}
	reply(w, http.StatusOK, true)
}

func (s *Server) drop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(w, r) == nil {
		return
	}
	delete(s.collections, r.PathValue("name"))
	reply(w, http.StatusOK, true)
}

func (s *Server) upsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reply(w, http.StatusBadRequest, nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lookup(w, r)
	if c == nil {
		return
	}
	for _, p := range body.Points {
		if len(p.Vector) != c.size {
			reply(w, http.StatusBadRequest, nil)
			return
		}
	}
	for _, p := range body.Points {
		c.points[p.ID] = point{id: p.ID, vector: p.Vector, payload: p.Payload}
	}
	reply(w, http.StatusOK, map[string]any{"status": "completed"})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query  []float32 `json:"query"`
		Limit  int       `json:"limit"`
		Filter struct {
			Must []struct {
				Key   string `json:"key"`
				Match struct {
					Value string `json:"value"`
				} `json:"match"`
			} `json:"must"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reply(w, http.StatusBadRequest, nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSearch {
		reply(w, http.StatusInternalServerError, nil)
		return
	}
	c := s.lookup(w, r)
	if c == nil {
		return
	}

	type hit struct {
		ID      string         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	var hits []hit
	for _, p := range c.points {
		matched := true
		for _, m := range body.Filter.Must {
			if v, _ := p.payload[m.Key].(string); v != m.Match.Value {
				matched = false
				break
			}
		}
		if matched {
			hits = append(hits, hit{ID: p.id, Score: cosine(body.Query, p.vector), Payload: p.payload})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if body.Limit > 0 && len(hits) > body.Limit {
		hits = hits[:body.Limit]
	}
	reply(w, http.StatusOK, map[string]any{"points": hits})
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lookup(w, r)
	if c == nil {
		return
	}
	reply(w, http.StatusOK, map[string]any{"count": len(c.points)})
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
