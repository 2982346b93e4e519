// Package mintapi is the wallet-facing Request API of spec.md §6: a
// JSON-over-HTTP surface in front of internal/mint.Mint, built the way
// the teacher's admin server is (gorilla/mux router, permissive CORS
// middleware, and strict JSON request decoding) since the teacher's own
// wallet-facing surface is gRPC rather than plain HTTP+JSON.
package mintapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/mint"
	"github.com/paynet-mint/node/internal/obs"
)

// Server adapts a *mint.Mint to the wallet-facing HTTP+JSON surface.
type Server struct {
	mint *mint.Mint
	log  obs.Logger
}

func NewServer(m *mint.Mint, log obs.Logger) *Server {
	return &Server{mint: m, log: log}
}

// Router builds the mux.Router serving every operation in spec.md §6's
// method surface, under conventional NUT-style paths.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/info", s.getMintInfo).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/keys", s.getKeys).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/keys/{keyset_id}", s.getKeysById).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/keysets", s.getKeysets).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/v1/mint/quote/{method}", s.postMintQuote).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/mint/quote/{method}/{quote_id}", s.getMintQuoteState).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/mint/{method}", s.postMint).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/v1/melt/quote/{method}", s.postMeltQuote).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/melt/quote/{method}/{quote_id}", s.getMeltQuoteState).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/melt/{method}", s.postMelt).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/v1/swap", s.postSwap).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/checkstate", s.postCheckState).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/restore", s.postRestore).Methods(http.MethodPost, http.MethodOptions)

	r.Use(setupHeaders)
	return r
}

// setupHeaders sets the response content type and permissive CORS
// headers every route shares, and short-circuits preflight OPTIONS
// requests before they reach a handler.
func setupHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, origin")

		if req.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(rw, req)
	})
}

// decodeJsonReqBody requires an application/json body, rejects unknown
// fields, and maps decode failures onto the cashuerr taxonomy instead of
// leaking an encoding/json error straight to the wallet.
func decodeJsonReqBody(req *http.Request, dst any) error {
	if ct := req.Header.Get("Content-Type"); ct != "" {
		mediaType := strings.ToLower(strings.Split(ct, ";")[0])
		if mediaType != "application/json" {
			return cashuerr.Build(cashuerr.Validation, cashuerr.StandardErrCode, "Content-Type header is not application/json")
		}
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError

		switch {
		case errors.As(err, &syntaxErr):
			return cashuerr.Buildf(cashuerr.Validation, cashuerr.StandardErrCode, "bad json at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return cashuerr.Buildf(cashuerr.Validation, cashuerr.StandardErrCode, "invalid %v for field %q", typeErr.Value, typeErr.Field)
		case errors.Is(err, io.EOF):
			return cashuerr.Build(cashuerr.Validation, cashuerr.StandardErrCode, "request body is empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return cashuerr.Buildf(cashuerr.Validation, cashuerr.StandardErrCode, "request body contains unknown field %s", field)
		default:
			return cashuerr.Build(cashuerr.Validation, cashuerr.StandardErrCode, err.Error())
		}
	}
	return nil
}

// writeJSON marshals v and writes it with a 200 status.
func writeJSON(rw http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(rw, cashuerr.Build(cashuerr.Fatal, cashuerr.SchemaMismatchCode, "failed to encode response"))
		return
	}
	rw.Write(b)
}

// writeError maps a cashuerr.Error's Category onto an HTTP status and
// writes the error as the JSON response body, per spec.md §7's policy
// (Validation -> invalid-argument, Conflict -> failed-precondition, ...).
func writeError(rw http.ResponseWriter, err error) {
	var cerr *cashuerr.Error
	if !errors.As(err, &cerr) {
		cerr = cashuerr.Build(cashuerr.Fatal, cashuerr.StandardErrCode, err.Error())
	}

	status := http.StatusInternalServerError
	switch cerr.Category {
	case cashuerr.Validation:
		status = http.StatusBadRequest
	case cashuerr.Conflict:
		status = http.StatusBadRequest
	case cashuerr.Cryptographic:
		status = http.StatusBadRequest
	case cashuerr.Transient:
		status = http.StatusServiceUnavailable
	case cashuerr.Integrity, cashuerr.Fatal:
		status = http.StatusInternalServerError
	}

	rw.WriteHeader(status)
	b, _ := json.Marshal(cerr)
	rw.Write(b)
}

func parseUnit(rw http.ResponseWriter, s string) (cashu.Unit, bool) {
	unit, err := cashu.ParseUnit(s)
	if err != nil {
		writeError(rw, cashuerr.UnitNotSupported)
		return 0, false
	}
	return unit, true
}
