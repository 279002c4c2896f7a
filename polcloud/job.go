package polcloud

import (
	"context"
	"errors"
	"log"
	"net/http"
)

// Job is one submission. Its fields are filled in as the lifecycle calls
// succeed: Inputs, then Spec, then Pool, then ID.
type Job struct {
	client *Client
	token  string

	// Inputs is the input bundle id.
	Inputs string
	// Spec is the job specification id.
	Spec string
	Pool *Pool
	// ID is assigned by the backend on submission.
	ID string
}

// SetUser stores the token sent with every subsequent request.
func (j *Job) SetUser(token string) {
	j.token = token
}

// CreateInput registers a new input bundle. With no files the bundle starts
// empty, otherwise every file is uploaded in a single request.
func (j *Job) CreateInput(ctx context.Context, files ...string) error {
	req := request{
		method: http.MethodPost,
		token:  j.token,
		path:   []string{inputsPath},
	}
	if len(files) > 0 {
		body, err := newMultipartBody(files...)
		if err != nil {
			return err
		}
		defer body.Close()
		req.body = body.Reader
		req.contentType = body.contentType
		req.length = body.length
	}

	out, err := j.client.do(ctx, req)
	if err != nil {
		log.Printf("create input failed: %s", err)
		return err
	}
	j.Inputs = identifier(out)
	return nil
}

// UpdateInput adds file to the input bundle. The observer, if any, is called
// from within the upload with the cumulative number of bytes sent.
func (j *Job) UpdateInput(ctx context.Context, file string, observer Observer) error {
	body, err := newMultipartBody(file)
	if err != nil {
		return err
	}
	defer body.Close()

	req := request{
		method:      http.MethodPut,
		token:       j.token,
		path:        []string{inputsPath, j.Inputs},
		body:        body.Reader,
		contentType: body.contentType,
		length:      body.length,
	}
	if observer != nil {
		req.body = &progressReader{r: body.Reader, observer: observer}
	}

	if _, err := j.client.do(ctx, req); err != nil {
		log.Printf("update input failed: %s", err)
		return err
	}
	return nil
}

// GetInputInfo fetches the metadata of the input bundle.
func (j *Job) GetInputInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	if err := j.client.getJSON(ctx, j.token, &info, inputsPath, j.Inputs); err != nil {
		log.Printf("get input info failed: %s", err)
		return nil, err
	}
	return info, nil
}

// CreatePool provisions a new pool of size nodes and attaches the job to it.
func (j *Job) CreatePool(ctx context.Context, size int) error {
	p, err := j.client.CreatePool(ctx, size, j.token)
	if err != nil {
		return err
	}
	j.Pool = p
	return nil
}

// SetPool attaches the job to an existing pool.
func (j *Job) SetPool(id string) {
	j.Pool = j.client.NewPool(id, j.token)
}

// CreateJobSpec registers spec and keeps its id.
func (j *Job) CreateJobSpec(ctx context.Context, spec JobSpec) error {
	out, err := j.client.doJSON(ctx, http.MethodPost, j.token, spec, specsPath)
	if err != nil {
		log.Printf("create job spec failed: %s", err)
		return err
	}
	j.Spec = identifier(out)
	return nil
}

// GetJobSpec fetches the job specification document.
func (j *Job) GetJobSpec(ctx context.Context) (JobSpec, error) {
	var spec JobSpec
	if err := j.client.getJSON(ctx, j.token, &spec, specsPath, j.Spec); err != nil {
		log.Printf("get job spec failed: %s", err)
		return nil, err
	}
	return spec, nil
}

// Submit runs the job spec on the attached pool and returns the job id.
func (j *Job) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	if j.Pool == nil {
		return "", errors.New("submit: no pool attached")
	}
	out, err := j.client.doJSON(ctx, http.MethodPost, j.token, &submitPayload{
		WallClock:  req.WallClock,
		Size:       req.Size,
		PoolName:   j.Pool.ID,
		JobSpec:    j.Spec,
		DeletePool: req.DeletePool,
	}, jobsPath)
	if err != nil {
		log.Printf("submit failed: %s", err)
		return "", err
	}
	j.ID = identifier(out)
	return j.ID, nil
}

// GetState returns the raw state text of the job.
func (j *Job) GetState(ctx context.Context) (string, error) {
	out, err := j.client.do(ctx, request{
		method: http.MethodGet,
		token:  j.token,
		path:   []string{jobsPath, j.ID, "state"},
	})
	if err != nil {
		log.Printf("get state failed: %s", err)
		return "", err
	}
	return string(out), nil
}

// IsComplete reports whether the state is exactly CompletedState.
func (j *Job) IsComplete(ctx context.Context) (bool, error) {
	state, err := j.GetState(ctx)
	if err != nil {
		return false, err
	}
	return state == CompletedState, nil
}

// ListOutputs fetches the artifacts produced by a completed job.
func (j *Job) ListOutputs(ctx context.Context) ([]any, error) {
	var outputs []any
	if err := j.client.getJSON(ctx, j.token, &outputs, jobsPath, j.ID, "outputs"); err != nil {
		log.Printf("list outputs failed: %s", err)
		return nil, err
	}
	return outputs, nil
}
