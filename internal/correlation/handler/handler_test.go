package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"caresignal/internal/correlation"
	"caresignal/pkg/jwtauth"
)

type fakeService struct {
	result *correlation.EvaluationResult
	err    error
}

func (f *fakeService) Run(_ context.Context, subjectID string, windowHours int) (*correlation.EvaluationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	now := time.Now()
	return &correlation.EvaluationResult{
		SubjectID:    subjectID,
		SubjectFound: true,
		WindowStart:  now.Add(-time.Duration(windowHours) * time.Hour),
		WindowEnd:    now,
	}, nil
}

type HandlerSuite struct {
	suite.Suite
	service *fakeService
	events  *correlation.InMemoryEventStore
	jwt     *jwtauth.Service
	router  chi.Router
}

func (s *HandlerSuite) SetupTest() {
	s.service = &fakeService{}
	s.events = correlation.NewInMemoryEventStore()
	s.jwt = jwtauth.NewService("test-signing-key", "caresignal-test")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.service, s.events, logger, s.jwt)

	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)

	token, err := s.jwt.GenerateToken("scheduler", "service", time.Minute)
	require.NoError(s.T(), err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestRunReturnsResult() {
	eventID := uuid.New()
	s.service.result = &correlation.EvaluationResult{
		SubjectID:     "subj-x",
		SubjectFound:  true,
		EventsCreated: 1,
		Events: []correlation.EventSummary{
			{RuleName: "medication_adherence_vitals_pattern", EventID: eventID, Severity: "HIGH"},
		},
	}

	rec := s.request(http.MethodPost, "/v1/subjects/subj-x/correlation/run", map[string]int{"window_hours": 168})

	require.Equal(s.T(), http.StatusOK, rec.Code)
	var resp runResponse
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(s.T(), "subj-x", resp.SubjectID)
	assert.Equal(s.T(), 1, resp.EventsCreated)
	require.Len(s.T(), resp.Events, 1)
	assert.Equal(s.T(), eventID.String(), resp.Events[0].EventID)
}

func (s *HandlerSuite) TestRunInvalidWindow() {
	s.service.err = correlation.ErrInvalidWindow
	rec := s.request(http.MethodPost, "/v1/subjects/subj-x/correlation/run", map[string]int{"window_hours": -1})
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRunLockedConflict() {
	s.service.err = correlation.ErrEvaluationInProgress
	rec := s.request(http.MethodPost, "/v1/subjects/subj-x/correlation/run", map[string]int{"window_hours": 168})
	assert.Equal(s.T(), http.StatusConflict, rec.Code)
}

func (s *HandlerSuite) TestRunRejectsNonJSONBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/subjects/subj-x/correlation/run", bytes.NewBufferString("not json"))
	token, err := s.jwt.GenerateToken("scheduler", "service", time.Minute)
	require.NoError(s.T(), err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMissingTokenUnauthorized() {
	req := httptest.NewRequest(http.MethodPost, "/v1/subjects/subj-x/correlation/run", bytes.NewBufferString(`{"window_hours":168}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestExpiredTokenUnauthorized() {
	token, err := s.jwt.GenerateToken("scheduler", "service", -time.Minute)
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/v1/subjects/subj-x/correlation/run", bytes.NewBufferString(`{"window_hours":168}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestListEvents() {
	ev := correlation.CompoundEvent{
		ID:        uuid.New(),
		SubjectID: "subj-x",
		RuleID:    uuid.New(),
		RuleName:  "multi_domain_instability",
		Severity:  "CRITICAL",
		CreatedAt: time.Now(),
	}
	require.NoError(s.T(), s.events.CreateWithContributions(context.Background(), &ev, []correlation.SignalContribution{
		{CompoundEventID: ev.ID, Domain: "vital", SignalType: "heart_rate", SignalTimestamp: time.Now()},
	}))

	rec := s.request(http.MethodGet, "/v1/subjects/subj-x/events", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp []eventResponse
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(s.T(), resp, 1)
	assert.Equal(s.T(), ev.ID.String(), resp[0].ID)

	rec = s.request(http.MethodGet, "/v1/events/"+ev.ID.String()+"/contributions", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	var contribs []contributionResponse
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &contribs))
	assert.Len(s.T(), contribs, 1)
}

func (s *HandlerSuite) TestContributionsUnknownEvent() {
	rec := s.request(http.MethodGet, "/v1/events/"+uuid.NewString()+"/contributions", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestContributionsBadEventID() {
	rec := s.request(http.MethodGet, "/v1/events/not-a-uuid/contributions", nil)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}
