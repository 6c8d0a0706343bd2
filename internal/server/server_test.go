package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/restyle/internal/config"
	"github.com/matzehuels/restyle/pkg/cache"
	"github.com/matzehuels/restyle/pkg/errors"
	"github.com/matzehuels/restyle/pkg/pipeline"
	"github.com/matzehuels/restyle/pkg/session"
	"github.com/matzehuels/restyle/pkg/style"
)

// =============================================================================
// Helpers
// =============================================================================

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.CORSOrigins = []string{"https://app.example"}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := log.New(io.Discard)
	runner := pipeline.NewRunner(cache.NewMemoryCache(0), nil, logger, pipeline.WithMaxConcurrent(2))
	s := New(cfg, runner, session.NewMemoryStore(), logger)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func roomPhoto(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 9), uint8(y * 11), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func rawRequest(method, target, contentType string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func multipartRequest(t *testing.T, method, target, filename string, photo []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = fw.Write(photo)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return rawRequest(method, target, "application/json", body)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code errors.Code) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decodeError(t, rec).Code)
}

// =============================================================================
// Service Endpoints
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Version)
}

func TestStyles(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/styles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body []styleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 4)
	assert.Equal(t, "Modern", body[0].Name)
	assert.Equal(t, overlayView{R: 30, G: 144, B: 255, A: 40}, body[0].Overlay)
	assert.Equal(t, "Japanese", body[3].Name)
}

func TestRenderRawBody(t *testing.T) {
	s := newTestServer(t, nil)
	photo := roomPhoto(t, 30, 20)

	rec := do(t, s, rawRequest(http.MethodPost, "/api/v1/render?style=Modern&quality=70", "image/png", photo))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="generated.jpg"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Modern", rec.Header().Get(HeaderStyle))
	assert.Equal(t, "miss", rec.Header().Get(HeaderCache))
	assert.Equal(t, "30x20", rec.Header().Get("X-Restyle-Size"))

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Width)
	assert.Equal(t, 20, cfg.Height)

	want, err := style.Render(photo, "Modern", style.WithQuality(70))
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.Bytes())

	again := do(t, s, rawRequest(http.MethodPost, "/api/v1/render?style=Modern&quality=70", "image/png", photo))
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "hit", again.Header().Get(HeaderCache))
	assert.Equal(t, rec.Body.Bytes(), again.Body.Bytes())
}

func TestRenderMultipart(t *testing.T) {
	s := newTestServer(t, nil)
	photo := roomPhoto(t, 16, 16)

	req := multipartRequest(t, http.MethodPost, "/api/v1/render", "living-room.PNG", photo, map[string]string{
		"style": "Japanese",
	})
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Japanese", rec.Header().Get(HeaderStyle))

	want, err := style.Render(photo, "Japanese")
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.Bytes(), "default quality should match the renderer default")
}

func TestRenderUnknownStyle(t *testing.T) {
	photo := roomPhoto(t, 8, 8)

	lenient := newTestServer(t, nil)
	rec := do(t, lenient, rawRequest(http.MethodPost, "/api/v1/render?style=Baroque", "image/png", photo))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "None", rec.Header().Get(HeaderStyle))

	strict := newTestServer(t, func(c *config.Config) { c.Render.StrictStyles = true })
	rec = do(t, strict, rawRequest(http.MethodPost, "/api/v1/render?style=Baroque", "image/png", photo))
	assertError(t, rec, http.StatusBadRequest, errors.ErrCodeInvalidStyle)
	assert.Contains(t, decodeError(t, rec).Message, "Modern")
}

func TestRenderErrors(t *testing.T) {
	photo := roomPhoto(t, 8, 8)

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   errors.Code
	}{
		{
			name: "garbage bytes",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render", "image/jpeg", []byte("not a photo"))
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidImage,
		},
		{
			name: "truncated photo",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render", "image/png", photo[:40])
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidImage,
		},
		{
			name: "empty body",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render", "image/png", nil)
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidImage,
		},
		{
			name: "text body",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render", "text/plain", photo)
			},
			status: http.StatusUnsupportedMediaType,
			code:   errors.ErrCodeUnsupported,
		},
		{
			name: "no content type",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render", "", photo)
			},
			status: http.StatusUnsupportedMediaType,
			code:   errors.ErrCodeUnsupported,
		},
		{
			name: "quality not a number",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render?quality=best", "image/png", photo)
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidQuality,
		},
		{
			name: "quality out of range",
			req: func(*testing.T) *http.Request {
				return rawRequest(http.MethodPost, "/api/v1/render?quality=101", "image/png", photo)
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidQuality,
		},
		{
			name: "disallowed extension",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, http.MethodPost, "/api/v1/render", "room.gif", photo, nil)
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidFilename,
		},
		{
			name: "missing file part",
			req: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				require.NoError(t, mw.WriteField("style", "Modern"))
				require.NoError(t, mw.Close())
				return rawRequest(http.MethodPost, "/api/v1/render", mw.FormDataContentType(), buf.Bytes())
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeInvalidInput,
		},
	}

	s := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.req(t))
			assertError(t, rec, tt.status, tt.code)
		})
	}
}

func TestRenderTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.MaxUploadBytes = 512 })
	rec := do(t, s, rawRequest(http.MethodPost, "/api/v1/render", "image/png", bytes.Repeat([]byte{0x89}, 2048)))
	assertError(t, rec, http.StatusRequestEntityTooLarge, errors.ErrCodePayloadTooLarge)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assertError(t, rec, http.StatusNotFound, errors.ErrCodeNotFound)

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/v1/styles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// Middleware
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/styles", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := do(t, s, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), HeaderCache)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/styles", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = do(t, s, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/render", nil)
	preflight.Header.Set("Origin", "https://app.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = do(t, s, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSWildcard(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.CORSOrigins = []string{"*"} })
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := do(t, s, req)
	assert.Equal(t, "https://anything.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

// =============================================================================
// Sessions
// =============================================================================

func createSession(t *testing.T, s *Server) sessionView {
	t.Helper()
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "/api/v1/sessions/"+view.ID, rec.Header().Get("Location"))
	return view
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t, nil)
	photo := roomPhoto(t, 24, 18)
	view := createSession(t, s)
	base := "/api/v1/sessions/" + view.ID

	require.NoError(t, session.ValidateID(view.ID))
	assert.False(t, view.HasSource)
	assert.False(t, view.HasResult)
	assert.True(t, view.ExpiresAt.After(view.CreatedAt))

	// Generating before an upload is a conflict.
	rec := do(t, s, jsonRequest(t, http.MethodPost, base+"/generate", renderParams{Style: "Nordic"}))
	assertError(t, rec, http.StatusConflict, errors.ErrCodeNoSourceImage)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/result", nil))
	assertError(t, rec, http.StatusNotFound, errors.ErrCodeNotFound)

	// Upload.
	rec = do(t, s, multipartRequest(t, http.MethodPut, base+"/source", "room.png", photo, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.HasSource)
	assert.Equal(t, "image/png", view.SourceType)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/source", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, photo, rec.Body.Bytes())

	// Generate.
	rec = do(t, s, jsonRequest(t, http.MethodPost, base+"/generate", renderParams{Style: "Nordic", Quality: 60}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var gen generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	assert.Equal(t, "Nordic", gen.Render.Style)
	assert.Equal(t, 24, gen.Render.Width)
	assert.Equal(t, 18, gen.Render.Height)
	assert.True(t, gen.Session.HasResult)
	assert.Equal(t, "Nordic", gen.Session.Style)
	assert.Equal(t, 60, gen.Session.Quality)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="generated.jpg"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Nordic", rec.Header().Get(HeaderStyle))
	want, err := style.Render(photo, "Nordic", style.WithQuality(60))
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.Bytes())

	// A second generation with form values replaces the result.
	req := httptest.NewRequest(http.MethodPost, base+"/generate?style=Classic", nil)
	rec = do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/result", nil))
	assert.Equal(t, "Classic", rec.Header().Get(HeaderStyle))

	// Reset.
	rec = do(t, s, httptest.NewRequest(http.MethodPost, base+"/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.HasSource)
	assert.False(t, view.HasResult)
	assert.Empty(t, view.Style)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/source", nil))
	assertError(t, rec, http.StatusNotFound, errors.ErrCodeNotFound)

	// Delete.
	rec = do(t, s, httptest.NewRequest(http.MethodDelete, base, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base, nil))
	assertError(t, rec, http.StatusNotFound, errors.ErrCodeSessionNotFound)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestServer(t, nil)
	a := createSession(t, s)
	b := createSession(t, s)
	require.NotEqual(t, a.ID, b.ID)

	rec := do(t, s, rawRequest(http.MethodPut, "/api/v1/sessions/"+a.ID+"/source", "image/png", roomPhoto(t, 8, 8)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+b.ID+"/source", nil))
	assertError(t, rec, http.StatusNotFound, errors.ErrCodeNotFound)
}

func TestSessionErrors(t *testing.T) {
	s := newTestServer(t, nil)
	view := createSession(t, s)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/not-a-uuid", nil))
	assertError(t, rec, http.StatusBadRequest, errors.ErrCodeInvalidSession)

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/..%2Fetc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+strings.ToUpper(view.ID), nil))
	assertError(t, rec, http.StatusBadRequest, errors.ErrCodeInvalidSession)

	missing := session.New(time.Hour).ID
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+missing, nil))
	assertError(t, rec, http.StatusNotFound, errors.ErrCodeSessionNotFound)

	rec = do(t, s, rawRequest(http.MethodPut, "/api/v1/sessions/"+view.ID+"/source", "image/png", []byte("broken")))
	assertError(t, rec, http.StatusBadRequest, errors.ErrCodeInvalidImage)

	rec = do(t, s, rawRequest(http.MethodPost, "/api/v1/sessions/"+view.ID+"/generate", "application/json", []byte("{")))
	assertError(t, rec, http.StatusBadRequest, errors.ErrCodeInvalidInput)
}

type failingStore struct {
	*session.MemoryStore
}

func (failingStore) Set(context.Context, *session.Session) error {
	return stderrors.New("disk on fire")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	cfg := config.Default()
	logger := log.New(io.Discard)
	s := New(cfg, pipeline.NewRunner(nil, nil, logger), failingStore{session.NewMemoryStore()}, logger)

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	assertError(t, rec, http.StatusInternalServerError, errors.ErrCodeInternal)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.ShutdownTimeout = config.Duration{Duration: 2 * time.Second}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCleanupLoopSweepsExpired(t *testing.T) {
	store := session.NewMemoryStore()
	logger := log.New(io.Discard)
	s := New(config.Default(), pipeline.NewRunner(nil, nil, logger), store, logger)

	expired := session.New(time.Hour)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Set(context.Background(), expired))
	require.Equal(t, 1, store.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.cleanupLoop(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}
