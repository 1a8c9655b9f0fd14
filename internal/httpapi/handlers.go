// Package httpapi exposes the ledger over REST. Mutations go through the
// submission gateway; reads hit the ledger directly.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carevault.org/internal/auth"
	"carevault.org/internal/events"
	"carevault.org/internal/ledger"
	"carevault.org/internal/obs"
	"carevault.org/internal/submit"
)

const (
	serviceName  = "carevaultd"
	maxBodyBytes = 1 << 20
)

// ReadyProbe checks the journal database and the submission gateway.
type ReadyProbe struct {
	DB      *sql.DB
	Gateway *submit.Gateway
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Gateway != nil {
		if err := rp.Gateway.Ready(ctx); err != nil {
			return err
		}
	}
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Option configures an API.
type Option func(*API)

func WithVersion(v string) Option { return func(a *API) { a.version = v } }

func WithBus(b *events.Bus) Option { return func(a *API) { a.bus = b } }

func WithReadyProbe(rp ReadyProbe) Option { return func(a *API) { a.readyProbe = rp } }

// WithDevTokens enables POST /v1/auth/token.
func WithDevTokens(on bool) Option { return func(a *API) { a.devTokens = on } }

// WithRateLimit sets the per-IP token bucket; perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	gateway    *submit.Gateway
	ledger     *ledger.Ledger
	tokens     *auth.Tokens
	bus        *events.Bus
	readyProbe ReadyProbe
	version    string
	devTokens  bool
	ratePerSec float64
	rateBurst  int
}

func New(gw *submit.Gateway, tokens *auth.Tokens, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		gateway:    gw,
		ledger:     gw.Ledger(),
		tokens:     tokens,
		readyProbe: ReadyProbe{Gateway: gw},
		version:    "dev",
		ratePerSec: 50,
		rateBurst:  100,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("POST /v1/submit", a.handleSubmit)

	a.mux.HandleFunc("POST /v1/identities/patients", a.registerPatient)
	a.mux.HandleFunc("POST /v1/identities/doctors", a.registerDoctor)
	a.mux.HandleFunc("PUT /v1/identities/me/profile", a.updateProfile)
	a.mux.HandleFunc("GET /v1/identities/{address}", a.getIdentity)
	a.mux.HandleFunc("POST /v1/identities/{address}/verify", a.doctorStatus(submit.OpVerifyDoctor))
	a.mux.HandleFunc("POST /v1/identities/{address}/reject", a.doctorStatus(submit.OpRejectDoctor))
	a.mux.HandleFunc("POST /v1/identities/{address}/suspend", a.doctorStatus(submit.OpSuspendDoctor))

	a.mux.HandleFunc("POST /v1/records", a.addRecord)
	a.mux.HandleFunc("GET /v1/records/count", a.countRecords)
	a.mux.HandleFunc("GET /v1/records/{id}", a.getRecord)
	a.mux.HandleFunc("POST /v1/records/{id}/deactivate", a.deactivateRecord)
	a.mux.HandleFunc("GET /v1/patients/{address}/records", a.patientRecords)

	a.mux.HandleFunc("POST /v1/records/{id}/access-requests", a.requestAccess)
	a.mux.HandleFunc("GET /v1/records/{id}/access/{doctor}", a.accessFor)
	a.mux.HandleFunc("GET /v1/records/{id}/key", a.encryptedKey)
	a.mux.HandleFunc("POST /v1/access/{id}/grant", a.grantAccess)
	a.mux.HandleFunc("POST /v1/access/{id}/revoke", a.revokeAccess)
	a.mux.HandleFunc("GET /v1/access/{id}", a.getAccess)
	a.mux.HandleFunc("GET /v1/patients/{address}/pending-requests", a.pendingRequests)
	a.mux.HandleFunc("GET /v1/doctors/{address}/records", a.doctorRecords)

	a.mux.HandleFunc("GET /v1/audit", a.listAudit)
	a.mux.HandleFunc("GET /v1/events/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NotFound", "resource not found")
	})
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.mux)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"seq":    a.gateway.Seq(),
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"operations": submit.Operations(),
	})
}

// handleSubmit accepts a raw {op, args} operation.
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var op submit.Operation
	if err := decodeJSON(r, &op); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidArgs", err.Error())
		return
	}
	a.submitOperation(w, r, op, http.StatusOK)
}

// submitArgs encodes args, submits them as the authenticated caller and
// writes the receipt.
func (a *API) submitArgs(w http.ResponseWriter, r *http.Request, name string, args any, status int) {
	op, err := submit.NewOperation(name, args)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.submitOperation(w, r, op, status)
}

func (a *API) submitOperation(w http.ResponseWriter, r *http.Request, op submit.Operation, status int) {
	caller, _ := auth.CallerFromContext(r.Context())
	rcpt, err := a.gateway.Submit(r.Context(), ledger.Address(caller), op)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, rcpt)
}

// --- helpers ---

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object and rejects unknown fields. An
// empty body decodes as {}.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func parseInt(raw string, def, min, max int, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if val < min || val > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return val, nil
}

// readBody decodes the request body into dst and answers 400 on failure.
func readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			writeDomainError(w, r, err)
			return false
		}
		writeError(w, r, http.StatusBadRequest, "InvalidArgs", err.Error())
		return false
	}
	return true
}
