package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"moflow/internal/workflow/models"
	dErrors "moflow/pkg/domain-errors"
	"moflow/pkg/requestcontext"
)

type ClientSuite struct {
	suite.Suite
	server   *httptest.Server
	handler  http.HandlerFunc
	client   *Client
	lastReq  *http.Request
	lastBody []byte
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.handler = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastReq = r
		s.lastBody, _ = io.ReadAll(r.Body)
		s.handler(w, r)
	}))
	var err error
	s.client, err = New(s.server.URL+"/api/v1", WithHeader("X-Token", "secret"))
	s.Require().NoError(err)
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) respond(status int, body string) {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (s *ClientSuite) TestNew() {
	s.Run("rejects relative url", func() {
		_, err := New("/api/v1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ClientSuite) TestRoutes() {
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	cases := []struct {
		name string
		call func() (Result, error)
		path string
	}{
		{"employee create", func() (Result, error) {
			return s.client.Create(ctx, models.EntityEmployee, map[string]any{"name": "Anna"})
		}, "/api/v1/service/e/create"},
		{"org unit create", func() (Result, error) {
			return s.client.Create(ctx, models.EntityOrgUnit, map[string]any{"name": "IT"})
		}, "/api/v1/service/ou/create"},
		{"employee edit", func() (Result, error) {
			return s.client.Edit(ctx, models.EntityEmployee, "abc", []any{})
		}, "/api/v1/service/e/abc/edit"},
		{"org unit edit", func() (Result, error) {
			return s.client.Edit(ctx, models.EntityOrgUnit, "def", []any{})
		}, "/api/v1/service/ou/def/edit"},
		{"employee terminate", func() (Result, error) {
			return s.client.Terminate(ctx, models.EntityEmployee, "abc", map[string]any{})
		}, "/api/v1/service/e/abc/terminate"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.respond(http.StatusOK, `"11111111-1111-1111-1111-111111111111"`)
			res, err := tc.call()
			s.Require().NoError(err)
			s.Equal(http.MethodPost, s.lastReq.Method)
			s.Equal(tc.path, s.lastReq.URL.Path)
			s.Equal("application/json", s.lastReq.Header.Get("Content-Type"))
			s.Equal("secret", s.lastReq.Header.Get("X-Token"))
			s.Equal("req-1", s.lastReq.Header.Get("X-Request-ID"))
			id, err := res.Identifier()
			s.Require().NoError(err)
			s.Equal("11111111-1111-1111-1111-111111111111", id)
		})
	}

	s.Run("org units cannot be terminated", func() {
		_, err := s.client.Terminate(ctx, models.EntityOrgUnit, "def", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ClientSuite) TestPayloadIsSentAsJSON() {
	s.respond(http.StatusOK, `"x"`)
	_, err := s.client.Create(context.Background(), models.EntityEmployee, models.CreateEmployeePayload{Name: "Anna Jensen", CPRNo: "0101011234", Details: []models.DetailRecord{}})
	s.Require().NoError(err)
	s.JSONEq(`{"name":"Anna Jensen","cpr_no":"0101011234","details":[]}`, string(s.lastBody))
}

func (s *ClientSuite) TestIdentifier() {
	s.Run("sequence uses the first element", func() {
		s.respond(http.StatusOK, `["a","b"]`)
		res, err := s.client.Create(context.Background(), models.EntityEmployee, nil)
		s.Require().NoError(err)
		id, err := res.Identifier()
		s.Require().NoError(err)
		s.Equal("a", id)
	})

	s.Run("empty sequence is an error", func() {
		_, err := Result{Data: json.RawMessage(`[]`)}.Identifier()
		s.Error(err)
	})

	s.Run("object with uuid", func() {
		id, err := Result{Data: json.RawMessage(`{"uuid":"u"}`)}.Identifier()
		s.Require().NoError(err)
		s.Equal("u", id)
	})
}

func (s *ClientSuite) TestApplicationError() {
	s.respond(http.StatusOK, `{"error":true,"error_key":"V_ORIGINAL_ENTRY_CHANGED","description":"Original entry changed"}`)
	res, err := s.client.Edit(context.Background(), models.EntityOrgUnit, "u1", []any{})
	s.Require().NoError(err)

	appErr, ok := res.Failure()
	s.Require().True(ok)
	s.Equal("V_ORIGINAL_ENTRY_CHANGED", appErr.ErrorKey)
	s.Equal("Original entry changed", appErr.Description)
	s.JSONEq(string(res.Data), string(appErr.Raw))
}

func (s *ClientSuite) TestSuccessIsNotFailure() {
	s.respond(http.StatusOK, `{"error":false,"uuid":"x"}`)
	res, err := s.client.Create(context.Background(), models.EntityEmployee, nil)
	s.Require().NoError(err)
	_, ok := res.Failure()
	s.False(ok)
}

func (s *ClientSuite) TestTransportError() {
	s.Run("non 2xx keeps the body", func() {
		s.respond(http.StatusBadRequest, `{"error":true,"error_key":"V_CPR_NOT_VALID","status":400}`)
		_, err := s.client.Create(context.Background(), models.EntityEmployee, nil)

		var te *TransportError
		s.Require().True(errors.As(err, &te))
		s.Equal(http.StatusBadRequest, te.StatusCode)
		appErr, ok := te.AppError()
		s.Require().True(ok)
		s.Equal("V_CPR_NOT_VALID", appErr.ErrorKey)
		s.JSONEq(`{"error":true,"error_key":"V_CPR_NOT_VALID","status":400}`, string(te.Payload()))
	})

	s.Run("non JSON body is described", func() {
		s.handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}
		_, err := s.client.Create(context.Background(), models.EntityEmployee, nil)
		var te *TransportError
		s.Require().True(errors.As(err, &te))
		_, ok := te.AppError()
		s.False(ok)
		s.JSONEq(`{"status":502,"body":"<html>bad gateway</html>"}`, string(te.Payload()))
	})

	s.Run("timeout", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}
		client, err := New(s.server.URL, WithTimeout(50*time.Millisecond))
		s.Require().NoError(err)
		_, err = client.Create(context.Background(), models.EntityEmployee, nil)
		var te *TransportError
		s.Require().True(errors.As(err, &te))
		s.Zero(te.StatusCode)
		s.Error(te.Err)
	})

	s.Run("timeout applies regardless of option order", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}
		shared := &http.Client{}
		for _, opts := range [][]Option{
			{WithTimeout(50 * time.Millisecond), WithHTTPClient(shared)},
			{WithHTTPClient(shared), WithTimeout(50 * time.Millisecond)},
		} {
			client, err := New(s.server.URL, opts...)
			s.Require().NoError(err)
			s.Equal(50*time.Millisecond, client.httpClient.Timeout)
			_, err = client.Create(context.Background(), models.EntityEmployee, nil)
			var te *TransportError
			s.Require().True(errors.As(err, &te))
		}
		s.Zero(shared.Timeout, "the caller's client is not modified")
	})

	s.Run("connection refused", func() {
		client, err := New("http://127.0.0.1:1")
		s.Require().NoError(err)
		_, err = client.Create(context.Background(), models.EntityEmployee, nil)
		var te *TransportError
		s.True(errors.As(err, &te))
	})
}
