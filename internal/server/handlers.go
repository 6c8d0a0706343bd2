package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/restyle/pkg/buildinfo"
	"github.com/matzehuels/restyle/pkg/errors"
	"github.com/matzehuels/restyle/pkg/pipeline"
	"github.com/matzehuels/restyle/pkg/session"
	"github.com/matzehuels/restyle/pkg/style"
)

// ResultFilename is the download name of every generated image.
const ResultFilename = "generated.jpg"

// Response headers describing a render.
const (
	HeaderStyle = "X-Restyle-Style"
	HeaderCache = "X-Restyle-Cache"
)

// =============================================================================
// Response Types
// =============================================================================

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type overlayView struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

type styleView struct {
	Name    string      `json:"name"`
	Overlay overlayView `json:"overlay"`
}

type sessionView struct {
	ID         string    `json:"id"`
	HasSource  bool      `json:"has_source"`
	SourceType string    `json:"source_type,omitempty"`
	HasResult  bool      `json:"has_result"`
	Style      string    `json:"style,omitempty"`
	Quality    int       `json:"quality,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type renderView struct {
	Style      string `json:"style"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int    `json:"bytes"`
	Cached     bool   `json:"cached"`
	DurationMS int64  `json:"duration_ms"`
}

type generateResponse struct {
	Session sessionView `json:"session"`
	Render  renderView  `json:"render"`
}

func newSessionView(sess *session.Session) sessionView {
	return sessionView{
		ID:         sess.ID,
		HasSource:  sess.HasSource(),
		SourceType: sess.SourceType,
		HasResult:  sess.HasResult(),
		Style:      sess.Style,
		Quality:    sess.Quality,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
		ExpiresAt:  sess.ExpiresAt,
	}
}

// =============================================================================
// Service Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: buildinfo.Short()})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	styles := style.Styles()
	out := make([]styleView, len(styles))
	for i, st := range styles {
		c := st.Overlay()
		out[i] = styleView{Name: st.String(), Overlay: overlayView{R: c.R, G: c.G, B: c.B, A: c.A}}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := readParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.render(r.Context(), up.data, p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	setRenderHeaders(w, res)
	respondImage(w, res.ContentType, ResultFilename, res.Artifact)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, r, errors.New(errors.ErrCodeNotFound, "no route for %s", r.URL.Path))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
		Code:    errors.ErrCodeUnsupported,
		Message: r.Method + " is not allowed on " + r.URL.Path,
	}})
}

// =============================================================================
// Session Handlers
// =============================================================================

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := session.New(s.cfg.Session.TTL.Duration)
	if err := s.sessions.Set(r.Context(), sess); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+sess.ID)
	s.respondJSON(w, http.StatusCreated, newSessionView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := session.ValidateID(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutSource(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	up, err := readUpload(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, _, err := style.Decode(up.data); err != nil {
		s.respondError(w, r, errors.Wrap(errors.ErrCodeInvalidImage, err, "cannot read image"))
		return
	}

	sess.SetSource(up.data, up.contentType)
	if err := s.save(r.Context(), sess); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !sess.HasSource() {
		s.respondError(w, r, errors.New(errors.ErrCodeNotFound, "no photo uploaded"))
		return
	}
	respondImage(w, sess.SourceType, "", sess.Source)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := readParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !sess.HasSource() {
		s.respondError(w, r, errors.New(errors.ErrCodeNoSourceImage, "upload a photo before generating"))
		return
	}

	res, err := s.render(r.Context(), sess.Source, p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess.SetResult(res.Artifact, res.Style, s.quality(p))
	if err := s.save(r.Context(), sess); err != nil {
		s.respondError(w, r, err)
		return
	}

	setRenderHeaders(w, res)
	s.respondJSON(w, http.StatusOK, generateResponse{
		Session: newSessionView(sess),
		Render: renderView{
			Style:      res.Style,
			Width:      res.Width,
			Height:     res.Height,
			Bytes:      len(res.Artifact),
			Cached:     res.CacheInfo.RenderHit,
			DurationMS: res.Stats.Total().Milliseconds(),
		},
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !sess.HasResult() {
		s.respondError(w, r, errors.New(errors.ErrCodeNotFound, "nothing generated yet"))
		return
	}
	w.Header().Set(HeaderStyle, sess.Style)
	respondImage(w, style.ContentType, ResultFilename, sess.Result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sess.Reset()
	if err := s.save(r.Context(), sess); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSessionView(sess))
}

// =============================================================================
// Helpers
// =============================================================================

// loadSession resolves the {id} URL parameter to a live session.
func (s *Server) loadSession(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "id")
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load session")
	}
	if sess == nil {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "session %s not found or expired", id)
	}
	return sess, nil
}

// save extends the session's lifetime and stores it.
func (s *Server) save(ctx context.Context, sess *session.Session) error {
	sess.Touch(s.cfg.Session.TTL.Duration)
	if err := s.sessions.Set(ctx, sess); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "save session")
	}
	return nil
}

// render runs the pipeline bounded by the write timeout.
func (s *Server) render(ctx context.Context, src []byte, p renderParams) (*pipeline.Result, error) {
	if d := s.cfg.Server.WriteTimeout.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return s.runner.Execute(ctx, src, pipeline.Options{
		Style:   p.Style,
		Quality: s.quality(p),
		Strict:  s.cfg.Render.StrictStyles,
	})
}

func (s *Server) quality(p renderParams) int {
	if p.Quality == 0 {
		return s.cfg.Render.Quality
	}
	return p.Quality
}

func setRenderHeaders(w http.ResponseWriter, res *pipeline.Result) {
	h := w.Header()
	h.Set(HeaderStyle, res.Style)
	if res.CacheInfo.RenderHit {
		h.Set(HeaderCache, "hit")
	} else {
		h.Set(HeaderCache, "miss")
	}
	h.Set("X-Restyle-Size", strconv.Itoa(res.Width)+"x"+strconv.Itoa(res.Height))
}
