package fakebackend

import (
	"errors"
	"log"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const fileField = "file[]"

type Error struct {
	Error string `json:"error"`
	Data  string `json:"data,omitempty"`
}

type submitRequest struct {
	WallClock  string `json:"wall_clock"`
	Size       int    `json:"size"`
	PoolName   string `json:"pool_name"`
	JobSpec    string `json:"job_spec"`
	DeletePool bool   `json:"delete_pool"`
}

type createPoolRequest struct {
	Size int `json:"size"`
}

func fail(w http.ResponseWriter, r *http.Request, status int, err string) {
	render.Status(r, status)
	render.JSON(w, r, Error{Error: err})
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			fail(w, r, http.StatusUnauthorized, "token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readFiles extracts the uploaded file parts. A request without a multipart
// body carries no files.
func readFiles(r *http.Request) ([]File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return nil, nil
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, err
	}
	var files []File
	for _, fh := range r.MultipartForm.File[fileField] {
		files = append(files, File{Name: fh.Filename, Size: fh.Size})
	}
	if len(files) == 0 {
		return nil, errors.New("no " + fileField + " part in request")
	}
	return files, nil
}

func (b *Backend) CreateInput(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		log.Printf("create input failed: %s", err)
		return
	}

	in := &input{ID: newID(), Files: files}
	b.mu.Lock()
	b.inputs[in.ID] = in
	b.mu.Unlock()

	render.PlainText(w, r, in.ID)
}

func (b *Backend) UpdateInput(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		log.Printf("update input failed: %s", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inputs[chi.URLParam(r, "id")]
	if !ok {
		fail(w, r, http.StatusNotFound, "input not found")
		return
	}
	in.Files = append(in.Files, files...)
	render.NoContent(w, r)
}

func (b *Backend) GetInput(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inputs[chi.URLParam(r, "id")]
	if !ok {
		fail(w, r, http.StatusNotFound, "input not found")
		return
	}
	render.JSON(w, r, in)
}

func (b *Backend) CreateSpec(w http.ResponseWriter, r *http.Request) {
	var spec map[string]any
	if err := render.DecodeJSON(r.Body, &spec); err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := newID()
	b.AddSpec(id, spec)
	render.PlainText(w, r, id)
}

func (b *Backend) GetSpec(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	spec, ok := b.specs[chi.URLParam(r, "id")]
	if !ok {
		fail(w, r, http.StatusNotFound, "specification not found")
		return
	}
	render.JSON(w, r, spec)
}

func (b *Backend) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Size <= 0 {
		fail(w, r, http.StatusBadRequest, "size must be positive")
		return
	}

	id := newID()
	b.AddPool(id, req.Size)
	render.PlainText(w, r, id)
}

func (b *Backend) GetPool(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[chi.URLParam(r, "id")]
	if !ok {
		fail(w, r, http.StatusNotFound, "pool not found")
		return
	}
	p.polls++
	p.IsReady = p.polls > b.ReadyAfter
	render.JSON(w, r, p)
}

func (b *Backend) DeletePool(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := b.pools[id]; !ok {
		fail(w, r, http.StatusNotFound, "pool not found")
		return
	}
	delete(b.pools, id)
	render.NoContent(w, r)
}

func (b *Backend) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pools[req.PoolName]; !ok {
		fail(w, r, http.StatusBadRequest, "unknown pool "+req.PoolName)
		return
	}
	if _, ok := b.specs[req.JobSpec]; !ok {
		fail(w, r, http.StatusBadRequest, "unknown job spec "+req.JobSpec)
		return
	}
	if req.Size <= 0 || req.WallClock == "" {
		fail(w, r, http.StatusBadRequest, "size and wall_clock are required")
		return
	}

	j := &job{
		ID:         newID(),
		PoolName:   req.PoolName,
		Spec:       req.JobSpec,
		Size:       req.Size,
		WallClock:  req.WallClock,
		DeletePool: req.DeletePool,
	}
	b.jobs[j.ID] = j
	render.PlainText(w, r, j.ID)
}

func (b *Backend) GetState(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[chi.URLParam(r, "id")]
	if !ok {
		fail(w, r, http.StatusNotFound, "job not found")
		return
	}
	j.polls++
	if j.polls <= b.CompleteAfter {
		render.PlainText(w, r, RunningState)
		return
	}
	if j.DeletePool {
		delete(b.pools, j.PoolName)
	}
	render.PlainText(w, r, CompletedState)
}

func (b *Backend) ListOutputs(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[chi.URLParam(r, "id")]
	if !ok {
		fail(w, r, http.StatusNotFound, "job not found")
		return
	}
	if j.polls <= b.CompleteAfter {
		fail(w, r, http.StatusConflict, "job is still running")
		return
	}
	render.JSON(w, r, []File{
		{Name: "stdout.txt"},
		{Name: "stderr.txt"},
		{Name: "results/SnapShots.tar.gz"},
	})
}
