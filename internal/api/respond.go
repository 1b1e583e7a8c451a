// Package api implements the HTTP binding: a chi router exposing table
// management, Parquet ingest, query execution, and cluster membership
// over JSON, wrapping every handler's errors through the errs package.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/shardframe/shardframe/errs"
)

// dataEnvelope is the JSON envelope for a successful response.
type dataEnvelope struct {
	Data any `json:"data"`
}

// errorEnvelope is the JSON envelope for an error response.
type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes payload as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ok writes a 200 response with data wrapped in the standard envelope.
func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, dataEnvelope{Data: data})
}

// created writes a 201 response with data wrapped in the standard envelope.
func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, dataEnvelope{Data: data})
}

// noContent writes a 204 response.
func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// fail converts any error into its errs.Kind -> HTTP status mapping.
// Errors that are not already an *errs.Error are treated as Internal and
// logged with their cause, which is never sent to the client.
func fail(w http.ResponseWriter, logger log.Logger, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Internal(err)
	}

	if e.HTTPStatus >= 500 {
		level.Error(logger).Log("msg", "request failed", "kind", e.Kind, "err", e.Error())
	} else {
		level.Debug(logger).Log("msg", "request rejected", "kind", e.Kind, "err", e.Error())
	}

	writeJSON(w, e.HTTPStatus, errorEnvelope{Error: e.Message, Code: string(e.Kind)})
}
