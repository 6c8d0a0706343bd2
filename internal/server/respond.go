package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/matzehuels/restyle/pkg/errors"
	"github.com/matzehuels/restyle/pkg/observability"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

// respondError maps err to a status and JSON body. Uncoded errors are
// logged and reported as INTERNAL_ERROR without their details.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.logger.Debug("client went away", "path", r.URL.Path)
		return
	}
	if stderrors.Is(err, context.DeadlineExceeded) && errors.GetCode(err) == "" {
		err = errors.Wrap(errors.ErrCodeTimeout, err, "render timed out")
	}

	code := errors.GetCode(err)
	msg := errors.UserMessage(err)
	if code == "" {
		code = errors.ErrCodeInternal
		msg = "internal error"
	}

	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		observability.HTTP().OnError(r.Context(), r.Method, r.URL.Path, err)
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	s.respondJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// respondImage writes raw image bytes. A non-empty filename makes the
// response a download.
func respondImage(w http.ResponseWriter, contentType, filename string, data []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store")
	if filename != "" {
		h.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
