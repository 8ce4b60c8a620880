package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/pkg/http/middleware"
	"SignalGate/pkg/logger"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, map[string]int{"n": 1}) })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundErrorf("no %s", "thing")) })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/query", func(c echo.Context) error {
		req := struct {
			Symbol string `query:"symbol" validate:"required,uppercase"`
			Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
		}{}
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req.Limit)
	})
}

func newTestServer(t *testing.T) (*Server, *middleware.HTTPMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := middleware.NewHTTPMetrics(reg)
	s := NewServer(routes{}, logger.Nop(), WithMetrics("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m))
	return s, m
}

func do(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDataResponseUsesStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, "/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Equal(t, "Not Found", body.Message)
}

func TestRecoverReturns500(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestValidationDefaultsAndErrors(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, "/query?symbol=BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":100}`, rec.Body.String())

	rec = do(s, "/query?symbol=btcusdt&limit=0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Data []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	codes := []string{}
	for _, e := range body.Data {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{"ERR_UPPERCASE", "ERR_GTE"}, codes)
}

func TestMetricsEndpointAndRouteLabels(t *testing.T) {
	s, _ := newTestServer(t)
	do(s, "/ok")
	do(s, "/ok")

	rec := do(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signalgate_http_requests_total{method="GET",route="/ok",status="200"} 2`)
}

func TestMiddlewareCountsUnmatchedRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := middleware.NewHTTPMetrics(reg)
	e := echo.New()
	e.Use(m.Middleware(logger.Nop(), 0))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n, err := testutil.GatherAndCount(reg, "signalgate_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClientStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`{"code":-1}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := NewClient(WithHTTPClient(ts.Client()))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: ts.URL}, &out))
	assert.True(t, out.OK)

	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: ts.URL + "?fail=1"}, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTeapot, se.StatusCode)
	assert.JSONEq(t, `{"code":-1}`, string(se.Body))
}
