package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/records/count":                  "/v1/records/count",
		"/v1/records/7":                      "/v1/records/:id",
		"/v1/records/7/key":                  "/v1/records/:id/key",
		"/v1/records/7/access/abcd":          "/v1/records/:id/access/:doctor",
		"/v1/records/7/extra":                "/v1/records/7/extra",
		"/v1/identities/patients":            "/v1/identities/patients",
		"/v1/identities/abcd/verify":         "/v1/identities/:address/verify",
		"/v1/access/3/grant":                 "/v1/access/:id/grant",
		"/v1/patients/abcd/records?active=1": "/v1/patients/:address/records",
		"/v1/audit?after=10":                 "/v1/audit",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestMetricsExposed(t *testing.T) {
	Init()
	Init()
	InitBuildInfo("test", "abc123")
	ObserveSubmission("addRecord", "ok", 2*time.Millisecond)
	SetReady(true)

	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/records/1", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`carevault_submissions_total{op="addRecord",result="ok"}`,
		`carevault_build_info{commit="abc123",go_version="` + runtime.Version() + `",version="test"} 1`,
		`carevault_ready 1`,
		`http_requests_total{method="GET",path="/v1/records/:id",status="418"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
