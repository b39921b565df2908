package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"moflow/internal/validation"
	"moflow/pkg/requestcontext"
)

type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	s.Run("reuses inbound id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "req-1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal("req-1", seen)
		s.Equal("req-1", rr.Header().Get(HeaderRequestID))
	})

	s.Run("mints an id when absent", func() {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		s.NotEmpty(seen)
		s.Equal(seen, rr.Header().Get(HeaderRequestID))
	})
}

func (s *MiddlewareSuite) TestRequestTime() {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(first, second)
}

func (s *MiddlewareSuite) TestRequireSession() {
	var sid string
	h := RequireSession(s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid = requestcontext.SessionID(r.Context()).String()
	}))

	s.Run("valid header is bound", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderSessionID, "11111111-1111-1111-1111-111111111111")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("11111111-1111-1111-1111-111111111111", sid)
	})

	s.Run("missing header starts a session", func() {
		sid = ""
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		s.NotEmpty(sid)
		s.Equal(sid, rr.Header().Get(HeaderSessionID))
	})

	s.Run("malformed header is rejected", func() {
		sid = ""
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderSessionID, "not-a-uuid")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Empty(sid)
	})
}

func (s *MiddlewareSuite) TestRecovery() {
	h := Recovery(s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	s.NotPanics(func() { h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil)) })
	s.Equal(http.StatusInternalServerError, rr.Code)
	s.Contains(rr.Body.String(), "internal_error")
}

func (s *MiddlewareSuite) TestContentTypeJSON() {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.Run("rejects form bodies", func() {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusUnsupportedMediaType, rr.Code)
	})

	s.Run("accepts json with charset", func() {
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("empty post passes", func() {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
		s.Equal(http.StatusNoContent, rr.Code)
	})
}

func (s *MiddlewareSuite) TestTimeout() {
	var deadline bool
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	s.True(deadline)
}

func (s *MiddlewareSuite) TestLanguage() {
	var langs []string
	h := Language(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		langs = validation.Languages(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	s.Equal([]string{"en-GB,en;q=0.9"}, langs)
}
