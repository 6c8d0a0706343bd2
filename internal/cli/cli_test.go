package cli

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/restyle/internal/config"
	"github.com/matzehuels/restyle/pkg/cache"
)

// newTestCLI returns a CLI whose logger discards output.
func newTestCLI() *CLI {
	return New(io.Discard, LogInfo)
}

// writePhoto writes a small PNG gradient and returns its path.
func writePhoto(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCacheDirFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Dir = "/srv/restyle-cache"

	dir, err := cacheDir(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/srv/restyle-cache" {
		t.Errorf("cacheDir() = %q, want /srv/restyle-cache", dir)
	}
}

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/custom-cache")

	dir, err := cacheDir(config.Default())
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	expected := filepath.Join("/tmp/custom-cache", appName, "artifacts")
	if dir != expected {
		t.Errorf("cacheDir() with XDG_CACHE_HOME = %q, want %q", dir, expected)
	}
}

func TestNewCache(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()

	tests := []struct {
		name     string
		backend  string
		noCache  bool
		wantFile bool
	}{
		{"file by default", config.BackendMemory, false, true},
		{"no-cache flag", config.BackendMemory, true, false},
		{"backend none", config.BackendNone, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.Cache.Backend = tt.backend
			got, err := newCache(&c, tt.noCache)
			if err != nil {
				t.Fatal(err)
			}
			defer got.Close()

			_, isFile := got.(*cache.FileCache)
			if isFile != tt.wantFile {
				t.Errorf("newCache() = %T, want file cache: %v", got, tt.wantFile)
			}
		})
	}
}

func TestLoadConfigUsesFlagPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restyle.toml")
	if err := os.WriteFile(path, []byte("[render]\nquality = 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCLI()
	c.configPath = path
	cfg, err := c.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Render.Quality != 60 {
		t.Errorf("quality = %d, want 60", cfg.Render.Quality)
	}

	c.configPath = filepath.Join(t.TempDir(), "missing.toml")
	if _, err := c.loadConfig(); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("loadConfig() with missing file = %v, want read error", err)
	}
}
