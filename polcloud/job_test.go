//go:build unit

package polcloud_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/squarefactory/polcloud-submit/fakebackend"
	"github.com/squarefactory/polcloud-submit/mocks"
	"github.com/squarefactory/polcloud-submit/polcloud"
	"github.com/squarefactory/polcloud-submit/utils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type JobTestSuite struct {
	suite.Suite
	backend *fakebackend.Backend
	server  *httptest.Server
	client  *polcloud.Client
	token   string
	job     *polcloud.Job
}

func (suite *JobTestSuite) BeforeTest(suiteName, testName string) {
	suite.backend = fakebackend.New()
	suite.server = httptest.NewServer(suite.backend.Handler())
	suite.client = polcloud.NewClient(suite.server.URL + "/")
	suite.token = utils.GenerateRandomString(8)
	suite.job = suite.client.NewJob()
	suite.job.SetUser(suite.token)
}

func (suite *JobTestSuite) AfterTest(suiteName, testName string) {
	suite.server.Close()
}

func (suite *JobTestSuite) writeFile(name, body string) string {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (suite *JobTestSuite) TestCreateEmptyInput() {
	// Act
	err := suite.job.CreateInput(context.Background())

	// Assert
	suite.NoError(err)
	suite.NotEmpty(suite.job.Inputs)
	suite.Empty(suite.backend.InputFiles(suite.job.Inputs))
}

func (suite *JobTestSuite) TestCreateInputWithFiles() {
	// Arrange
	xml := suite.writeFile("input.xml", "<hemelbsettings/>")
	gmy := suite.writeFile("pipe.gmy", strings.Repeat("g", 4096))

	// Act
	err := suite.job.CreateInput(context.Background(), xml, gmy)

	// Assert
	suite.NoError(err)
	suite.Equal([]fakebackend.File{
		{Name: "input.xml", Size: 17},
		{Name: "pipe.gmy", Size: 4096},
	}, suite.backend.InputFiles(suite.job.Inputs))
}

func (suite *JobTestSuite) TestCreateInputMissingFile() {
	// Act
	err := suite.job.CreateInput(context.Background(), filepath.Join(suite.T().TempDir(), "nope.xml"))

	// Assert
	suite.Error(err)
	suite.Empty(suite.backend.Requests())
}

func (suite *JobTestSuite) TestUpdateInputReportsProgress() {
	// Arrange
	gmy := suite.writeFile("pipe.gmy", strings.Repeat("g", 256*1024))
	suite.Require().NoError(suite.job.CreateInput(context.Background()))
	observer := mocks.NewObserver(suite.T())
	observer.On("Progress", mock.AnythingOfType("int64")).Return()

	// Act
	err := suite.job.UpdateInput(context.Background(), gmy, observer)

	// Assert
	suite.NoError(err)
	suite.Equal([]fakebackend.File{{Name: "pipe.gmy", Size: 256 * 1024}},
		suite.backend.InputFiles(suite.job.Inputs))

	suite.NotEmpty(observer.Calls)
	var last int64
	for _, call := range observer.Calls {
		sent := call.Arguments.Get(0).(int64)
		suite.GreaterOrEqual(sent, last)
		last = sent
	}
	// the multipart framing is counted too
	suite.Greater(last, int64(256*1024))
}

func (suite *JobTestSuite) TestUpdateInputWithoutObserver() {
	// Arrange
	xml := suite.writeFile("input.xml", "<hemelbsettings/>")
	suite.Require().NoError(suite.job.CreateInput(context.Background()))

	// Act
	err := suite.job.UpdateInput(context.Background(), xml, nil)

	// Assert
	suite.NoError(err)
	suite.Len(suite.backend.InputFiles(suite.job.Inputs), 1)
}

func (suite *JobTestSuite) TestUpdateUnknownInput() {
	// Arrange
	xml := suite.writeFile("input.xml", "<hemelbsettings/>")
	suite.job.Inputs = "unknown"

	// Act
	err := suite.job.UpdateInput(context.Background(), xml, nil)

	// Assert
	var statusErr *polcloud.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusNotFound, statusErr.StatusCode)
	suite.Equal(http.MethodPut, statusErr.Method)
	suite.Equal("/inputs/unknown", statusErr.Path)
}

func (suite *JobTestSuite) TestGetInputInfo() {
	// Arrange
	xml := suite.writeFile("input.xml", "<hemelbsettings/>")
	suite.Require().NoError(suite.job.CreateInput(context.Background(), xml))

	// Act
	info, err := suite.job.GetInputInfo(context.Background())

	// Assert
	suite.NoError(err)
	suite.Equal(suite.job.Inputs, info["id"])
	suite.Len(info["files"], 1)
}

func (suite *JobTestSuite) TestJobSpecRoundTrip() {
	// Arrange
	spec := polcloud.JobSpec{
		"inputs":   "bundle-1",
		"commands": []any{map[string]any{"expression": "hemelb -in input.xml"}},
	}

	// Act
	err := suite.job.CreateJobSpec(context.Background(), spec)
	suite.Require().NoError(err)
	got, err := suite.job.GetJobSpec(context.Background())

	// Assert
	suite.NoError(err)
	suite.NotEmpty(suite.job.Spec)
	inputs, err := got.Inputs()
	suite.NoError(err)
	suite.Equal("bundle-1", inputs)
}

func (suite *JobTestSuite) TestMissingTokenIsRejected() {
	// Arrange
	job := suite.client.NewJob()

	// Act
	err := job.CreateInput(context.Background())

	// Assert
	var statusErr *polcloud.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusUnauthorized, statusErr.StatusCode)
	suite.Contains(statusErr.Error(), "token required")
}

func (suite *JobTestSuite) TestSubmitAndComplete() {
	// Arrange
	suite.backend.CompleteAfter = 2
	suite.backend.AddSpec("spec-1", map[string]any{"inputs": "bundle-1"})
	suite.job.Spec = "spec-1"
	suite.Require().NoError(suite.job.CreatePool(context.Background(), 2))
	ctx := context.Background()

	// Act
	jobID, err := suite.job.Submit(ctx, &polcloud.SubmitRequest{Size: 2, WallClock: "02:00"})

	// Assert
	suite.Require().NoError(err)
	suite.Equal(jobID, suite.job.ID)
	for i := 0; i < 2; i++ {
		state, err := suite.job.GetState(ctx)
		suite.NoError(err)
		suite.Equal(fakebackend.RunningState, state)
	}
	done, err := suite.job.IsComplete(ctx)
	suite.NoError(err)
	suite.True(done)

	outputs, err := suite.job.ListOutputs(ctx)
	suite.NoError(err)
	suite.Len(outputs, 3)
}

func (suite *JobTestSuite) TestSubmitWithoutPool() {
	// Act
	_, err := suite.job.Submit(context.Background(), &polcloud.SubmitRequest{Size: 2, WallClock: "02:00"})

	// Assert
	suite.Error(err)
	suite.Empty(suite.backend.Requests())
}

func (suite *JobTestSuite) TestSubmitUnknownSpec() {
	// Arrange
	suite.backend.AddPool("p1", 2)
	suite.job.SetPool("p1")
	suite.job.Spec = "missing"

	// Act
	_, err := suite.job.Submit(context.Background(), &polcloud.SubmitRequest{Size: 2, WallClock: "02:00"})

	// Assert
	var statusErr *polcloud.StatusError
	suite.Require().True(errors.As(err, &statusErr))
	suite.Equal(http.StatusBadRequest, statusErr.StatusCode)
}

func TestJobTestSuite(t *testing.T) {
	suite.Run(t, &JobTestSuite{})
}

type captured struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// capture serves body with status for every request and records the last
// request it saw.
func capture(t *testing.T, status int, body string) (*polcloud.Client, *captured) {
	t.Helper()
	last := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last.Method = r.Method
		last.Path = r.URL.Path
		last.Query = r.URL.Query()
		last.Body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return polcloud.NewClient(server.URL), last
}

func TestSubmitPayload(t *testing.T) {
	tests := []struct {
		name       string
		deletePool bool
		want       map[string]any
	}{
		{
			name: "without delete_pool",
			want: map[string]any{
				"wall_clock": "02:00",
				"size":       float64(3),
				"pool_name":  "p1",
				"job_spec":   "s1",
			},
		},
		{
			name:       "with delete_pool",
			deletePool: true,
			want: map[string]any{
				"wall_clock":  "02:00",
				"size":        float64(3),
				"pool_name":   "p1",
				"job_spec":    "s1",
				"delete_pool": true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, req := capture(t, http.StatusOK, "job-42\n")
			job := client.NewJob()
			job.SetUser("T")
			job.SetPool("p1")
			job.Spec = "s1"

			id, err := job.Submit(context.Background(), &polcloud.SubmitRequest{
				Size:       3,
				WallClock:  "02:00",
				DeletePool: tt.deletePool,
			})

			if err != nil {
				t.Fatal(err)
			}
			if id != "job-42" {
				t.Errorf("expected job-42, got %q", id)
			}
			if req.Method != http.MethodPost || req.Path != "/jobs" {
				t.Errorf("unexpected request %s %s", req.Method, req.Path)
			}
			if got := req.Query.Get("token"); got != "T" {
				t.Errorf("expected token T, got %q", got)
			}
			var got map[string]any
			if err := json.Unmarshal(req.Body, &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected fields %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %s: expected %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestIsCompleteExactMatch(t *testing.T) {
	tests := map[string]bool{
		"JobState.completed":   true,
		"JobState.running":     false,
		"jobstate.completed":   false,
		"JOBSTATE.COMPLETED":   false,
		"JobState.completed\n": false,
		" JobState.completed":  false,
		"completed":            false,
		"":                     false,
	}
	for state, want := range tests {
		client, req := capture(t, http.StatusOK, state)
		job := client.NewJob()
		job.SetUser("T")
		job.ID = "j1"

		got, err := job.IsComplete(context.Background())

		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("state %q: expected %v, got %v", state, want, got)
		}
		if req.Path != "/jobs/j1/state" {
			t.Errorf("unexpected path %s", req.Path)
		}
	}
}

func TestPoolErrorsAreReturned(t *testing.T) {
	client, _ := capture(t, http.StatusInternalServerError, "pool service down")
	pool := client.NewPool("p1", "T")

	_, err := pool.GetInfo(context.Background())
	var statusErr *polcloud.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 StatusError from GetInfo, got %v", err)
	}

	_, err = pool.IsReady(context.Background())
	if err == nil {
		t.Error("expected IsReady to fail")
	}

	err = pool.Delete(context.Background())
	if !errors.As(err, &statusErr) || statusErr.Method != http.MethodDelete {
		t.Errorf("expected DELETE StatusError, got %v", err)
	}
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	job := polcloud.NewClient(server.URL).NewJob()
	job.SetUser("T")

	err := job.CreateInput(context.Background())

	var statusErr *polcloud.StatusError
	if err == nil || errors.As(err, &statusErr) {
		t.Errorf("expected a transport error, got %v", err)
	}
}

func TestIsReadyMalformedFlag(t *testing.T) {
	tests := map[string]string{
		"missing": `{"id": "p1", "state": "steady"}`,
		"string":  `{"id": "p1", "is_ready": "true"}`,
		"number":  `{"id": "p1", "is_ready": 1}`,
		"null":    `{"id": "p1", "is_ready": null}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			client, _ := capture(t, http.StatusOK, body)
			pool := client.NewPool("p1", "T")

			ready, err := pool.IsReady(context.Background())

			if err == nil {
				t.Errorf("expected an error for %s, got ready=%v", body, ready)
			}
			if ready {
				t.Error("expected not ready")
			}
		})
	}
}

func TestIsReadyFlag(t *testing.T) {
	for body, want := range map[string]bool{
		`{"id": "p1", "is_ready": true}`:  true,
		`{"id": "p1", "is_ready": false}`: false,
	} {
		client, _ := capture(t, http.StatusOK, body)

		ready, err := client.NewPool("p1", "T").IsReady(context.Background())

		if err != nil {
			t.Fatal(err)
		}
		if ready != want {
			t.Errorf("%s: expected %v, got %v", body, want, ready)
		}
	}
}
