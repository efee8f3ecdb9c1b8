package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	jwttoken "ownergraph/internal/jwt_token"
	"ownergraph/pkg/platform/middleware/metadata"
	"ownergraph/pkg/requestcontext"
)

// whoami echoes the request context the middleware chain built.
type whoami struct{}

func (whoami) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"actor":      requestcontext.ActorID(ctx).String(),
			"request_id": requestcontext.RequestID(ctx),
			"client_ip":  requestcontext.ClientIP(ctx),
		})
	})
}

type RouterSuite struct {
	suite.Suite
	tokens *jwttoken.JWTService
	router http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.tokens = jwttoken.NewJWTService("router-test-key", "ownergraph", "ownergraph-api")
	s.router = NewRouter(Config{
		Validator: jwttoken.NewJWTServiceAdapter(s.tokens),
		Handlers:  []Registrar{whoami{}},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	})
}

func (s *RouterSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestAuthenticatedRequest() {
	token, err := s.tokens.GenerateAccessToken("analyst-3", time.Now(), time.Hour)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(metadata.HeaderRequestID, "req-42")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := s.serve(req)

	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("req-42", rec.Header().Get(metadata.HeaderRequestID))
	var body map[string]string
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Equal("analyst-3", body["actor"])
	s.Equal("req-42", body["request_id"])
	s.Equal("203.0.113.9", body["client_ip"])
}

func (s *RouterSuite) TestUnauthenticated() {
	s.Run("missing token", func() {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/v1/whoami", nil))
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.NotEmpty(rec.Header().Get(metadata.HeaderRequestID), "a request id is assigned")
	})

	s.Run("bad token", func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		s.Equal(http.StatusUnauthorized, s.serve(req).Code)
	})
}

func (s *RouterSuite) TestProbesNeedNoToken() {
	s.Run("healthz", func() {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		s.Require().Equal(http.StatusOK, rec.Code)
		var body healthResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
		s.Equal("ok", body.Status)
		s.Equal("ok", body.Checks["database"])
	})

	s.Run("metrics", func() {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *RouterSuite) TestDegradedHealth() {
	router := NewRouter(Config{
		Validator: jwttoken.NewJWTServiceAdapter(s.tokens),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}
