package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables that override file values.
const (
	EnvAddr            = "RESTYLE_ADDR"
	EnvMaxUploadBytes  = "RESTYLE_MAX_UPLOAD_BYTES"
	EnvCORSOrigins     = "RESTYLE_CORS_ORIGINS"
	EnvQuality         = "RESTYLE_RENDER_QUALITY"
	EnvMaxConcurrent   = "RESTYLE_RENDER_MAX_CONCURRENT"
	EnvStrictStyles    = "RESTYLE_STRICT_STYLES"
	EnvCacheBackend    = "RESTYLE_CACHE_BACKEND"
	EnvCacheDir        = "RESTYLE_CACHE_DIR"
	EnvSessionBackend  = "RESTYLE_SESSION_BACKEND"
	EnvSessionTTL      = "RESTYLE_SESSION_TTL"
	EnvRedisAddr       = "RESTYLE_REDIS_ADDR"
	EnvRedisPassword   = "RESTYLE_REDIS_PASSWORD"
	EnvRedisDB         = "RESTYLE_REDIS_DB"
	EnvMongoURI        = "RESTYLE_MONGO_URI"
	EnvLogLevel        = "RESTYLE_LOG_LEVEL"
	EnvShutdownTimeout = "RESTYLE_SHUTDOWN_TIMEOUT"
)

type lookupFunc func(string) (string, bool)

// loadEnv applies RESTYLE_* overrides. Malformed numbers and durations
// are errors rather than silently ignored.
func (c *Config) loadEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvAddr, &c.Server.Addr)
	str(EnvCacheBackend, &c.Cache.Backend)
	str(EnvCacheDir, &c.Cache.Dir)
	str(EnvSessionBackend, &c.Session.Backend)
	str(EnvRedisAddr, &c.Redis.Addr)
	str(EnvRedisPassword, &c.Redis.Password)
	str(EnvMongoURI, &c.Mongo.URI)
	str(EnvLogLevel, &c.Log.Level)

	if v, ok := lookup(EnvCORSOrigins); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	var err error
	if c.Server.MaxUploadBytes, err = envInt64(lookup, EnvMaxUploadBytes, c.Server.MaxUploadBytes); err != nil {
		return err
	}
	if c.Render.Quality, err = envInt(lookup, EnvQuality, c.Render.Quality); err != nil {
		return err
	}
	if c.Render.MaxConcurrent, err = envInt(lookup, EnvMaxConcurrent, c.Render.MaxConcurrent); err != nil {
		return err
	}
	if c.Redis.DB, err = envInt(lookup, EnvRedisDB, c.Redis.DB); err != nil {
		return err
	}
	if c.Render.StrictStyles, err = envBool(lookup, EnvStrictStyles, c.Render.StrictStyles); err != nil {
		return err
	}
	if c.Session.TTL.Duration, err = envDuration(lookup, EnvSessionTTL, c.Session.TTL.Duration); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout.Duration, err = envDuration(lookup, EnvShutdownTimeout, c.Server.ShutdownTimeout.Duration); err != nil {
		return err
	}
	return nil
}

func envInt(lookup lookupFunc, key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt64(lookup lookupFunc, key string, def int64) (int64, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(lookup lookupFunc, key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(lookup lookupFunc, key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
