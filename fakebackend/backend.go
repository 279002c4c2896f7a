// Package fakebackend is an in-memory stand-in for the polcloud backend. It
// serves the same REST surface so the client can be exercised without the
// cloud service: pools become ready and jobs complete after a configurable
// number of polls.
package fakebackend

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	RunningState   = "JobState.running"
	CompletedState = "JobState.completed"
)

type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type input struct {
	ID    string `json:"id"`
	Files []File `json:"files"`
}

type pool struct {
	ID      string `json:"id"`
	Size    int    `json:"size"`
	IsReady bool   `json:"is_ready"`
	polls   int
}

type job struct {
	ID         string
	PoolName   string
	Spec       string
	Size       int
	WallClock  string
	DeletePool bool
	polls      int
}

type Backend struct {
	// ReadyAfter is the number of pool info calls answered with
	// is_ready=false before the pool turns ready.
	ReadyAfter int
	// CompleteAfter is the number of state calls answered with RunningState
	// before the job completes.
	CompleteAfter int
	// Verbose logs every request.
	Verbose bool

	mu       sync.Mutex
	inputs   map[string]*input
	specs    map[string]map[string]any
	pools    map[string]*pool
	jobs     map[string]*job
	requests []string
}

func New() *Backend {
	return &Backend{
		inputs: make(map[string]*input),
		specs:  make(map[string]map[string]any),
		pools:  make(map[string]*pool),
		jobs:   make(map[string]*job),
	}
}

// Handler returns the router serving the backend API.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	if b.Verbose {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(b.record)
	r.Use(requireToken)

	r.Route("/inputs", func(r chi.Router) {
		r.Post("/", b.CreateInput)
		r.Put("/{id}", b.UpdateInput)
		r.Get("/{id}", b.GetInput)
	})
	r.Route("/specifications", func(r chi.Router) {
		r.Post("/", b.CreateSpec)
		r.Get("/{id}", b.GetSpec)
	})
	r.Route("/pools", func(r chi.Router) {
		r.Post("/", b.CreatePool)
		r.Get("/{id}", b.GetPool)
		r.Delete("/{id}", b.DeletePool)
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", b.Submit)
		r.Get("/{id}/state", b.GetState)
		r.Get("/{id}/outputs", b.ListOutputs)
	})
	return r
}

// AddSpec stores spec under a caller chosen id.
func (b *Backend) AddSpec(id string, spec map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs[id] = spec
}

// AddPool registers an already provisioned pool.
func (b *Backend) AddPool(id string, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pools[id] = &pool{ID: id, Size: size}
}

// HasPool reports whether id exists and was not deleted.
func (b *Backend) HasPool(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pools[id]
	return ok
}

// InputFiles lists the files stored in an input bundle, sorted by name.
func (b *Backend) InputFiles(id string) []File {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inputs[id]
	if !ok {
		return nil
	}
	files := append([]File(nil), in.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// Requests returns "METHOD path" for every request served so far.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, fmt.Sprintf("%s %s", r.Method, r.URL.Path))
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func newID() string {
	return uuid.New().String()
}
