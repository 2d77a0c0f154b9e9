package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/collection"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/requestcontext"
)

type stubSource struct{}

func (stubSource) ProduceEvidence(context.Context, id.Period) ([]collection.Payload, error) {
	return nil, nil
}

// runObservation is what the runner saw when the dispatched run finally
// executed.
type runObservation struct {
	jobID  id.JobID
	ctxErr error
	actor  string
}

// blockingRunner holds each run until released so tests can observe the
// response arriving while the run is still pending.
type blockingRunner struct {
	release chan struct{}
	done    chan runObservation
}

func (r *blockingRunner) RunJob(ctx context.Context, jobID id.JobID, _ time.Time) {
	<-r.release
	r.done <- runObservation{jobID: jobID, ctxErr: ctx.Err(), actor: requestcontext.Actor(ctx)}
}

// =============================================================================
// Collection Handler Test Suite
// =============================================================================
// Justification for unit tests: the run endpoint's contract is that the 202
// goes out before the source is touched and that ending the request does not
// kill the run; only a handler-level test can observe that ordering.

type HandlerSuite struct {
	suite.Suite
	store   *collection.InMemoryStore
	service *collection.Service
	runner  *blockingRunner
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.store = collection.NewInMemoryStore()
	registry := collection.NewRegistry()
	s.Require().NoError(registry.Register("keycloak", stubSource{}))
	s.service = collection.NewService(s.store, registry, logger,
		collection.WithDefaultTimeout(10*time.Minute))
	s.runner = &blockingRunner{release: make(chan struct{}), done: make(chan runObservation, 1)}
	s.router = chi.NewRouter()
	New(s.service, s.runner, logger).Register(s.router)
}

func (s *HandlerSuite) createJob(name string) *collection.Job {
	ctx := requestcontext.WithTime(context.Background(),
		time.Date(2026, time.August, 1, 6, 0, 0, 0, time.UTC))
	job, err := s.service.CreateJob(ctx, name, "pull", "keycloak", time.Hour, time.Minute)
	s.Require().NoError(err)
	return job
}

func (s *HandlerSuite) TestRunRespondsBeforeTheJobCompletes() {
	job := s.createJob("keycloak-pull")

	reqCtx, cancel := context.WithCancel(
		requestcontext.WithActor(context.Background(), "operator@example.com"))
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID.String()+"/run", nil).
		WithContext(reqCtx)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusAccepted, rec.Code)

	// The response is already out; ending the request must not cancel the
	// run, and the actor must survive into the run context.
	cancel()
	close(s.runner.release)
	select {
	case obs := <-s.runner.done:
		s.Equal(job.ID, obs.jobID)
		s.NoError(obs.ctxErr)
		s.Equal("operator@example.com", obs.actor)
	case <-time.After(time.Second):
		s.Fail("run was never dispatched")
	}
}

func (s *HandlerSuite) TestRunRejectsMalformedJobID() {
	req := httptest.NewRequest(http.MethodPost, "/jobs/not-a-uuid/run", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCreateWithoutTimeoutTakesServerDefault() {
	body, err := json.Marshal(CreateRequest{
		Name:         "keycloak-pull",
		JobType:      "pull",
		SourceSystem: "keycloak",
		Interval:     "24h",
	})
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusCreated, rec.Code)

	var job collection.Job
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &job))
	s.Equal(10*time.Minute, job.Timeout)
}

func (s *HandlerSuite) TestCreateRejectsMalformedTimeout() {
	body, err := json.Marshal(CreateRequest{
		Name:         "keycloak-pull",
		JobType:      "pull",
		SourceSystem: "keycloak",
		Interval:     "24h",
		Timeout:      "soon",
	})
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}
