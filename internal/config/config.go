package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/seralys/gacha-overlay/internal/constants"
)

type Config struct {
	BridgeHost  string
	BridgePort  int
	BridgePath  string
	Secure      bool
	Token       string
	OverrideURL string // full ws(s):// URL; wins over host/port/path when set

	AssetRoot  string
	HTTPPort   string
	LogLevel   string
	OverlayURL string // page-style URL whose query string overrides bridge params
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	port, err := strconv.Atoi(getEnv("BRIDGE_PORT", strconv.Itoa(constants.DefaultBridgePort)))
	if err != nil {
		return nil, fmt.Errorf("invalid BRIDGE_PORT: %w", err)
	}

	cfg := &Config{
		BridgeHost:  getEnv("BRIDGE_HOST", constants.DefaultBridgeHost),
		BridgePort:  port,
		BridgePath:  normalizePath(getEnv("BRIDGE_PATH", constants.DefaultBridgePath)),
		Secure:      getEnv("BRIDGE_SECURE", "") == "1" || strings.EqualFold(getEnv("BRIDGE_SECURE", ""), "true"),
		Token:       getEnv("BRIDGE_TOKEN", ""),
		OverrideURL: getEnv("BRIDGE_URL", ""),
		AssetRoot:   getEnv("ASSET_ROOT", "assets"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		OverlayURL:  getEnv("OVERLAY_URL", ""),
	}

	if cfg.OverlayURL != "" {
		u, err := url.Parse(cfg.OverlayURL)
		if err != nil {
			return nil, fmt.Errorf("invalid OVERLAY_URL: %w", err)
		}
		cfg.ApplyQuery(u.Query(), strings.EqualFold(u.Scheme, "https"))
	}

	logger.Info().
		Str("bridge_host", cfg.BridgeHost).
		Int("bridge_port", cfg.BridgePort).
		Str("bridge_path", cfg.BridgePath).
		Bool("secure", cfg.Secure).
		Str("http_port", cfg.HTTPPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

// ApplyQuery overlays page-query-string connection parameters onto the
// config. pageSecure is the transport security of the page itself, which
// the secure flag defaults to when the query does not set it.
func (c *Config) ApplyQuery(q url.Values, pageSecure bool) {
	if v := q.Get("host"); v != "" {
		c.BridgeHost = v
	}
	if v := q.Get("port"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.BridgePort = p
		}
	}
	if v := q.Get("path"); v != "" {
		c.BridgePath = normalizePath(v)
	}
	if v := q.Get("secure"); v != "" {
		c.Secure = v == "1" || strings.EqualFold(v, "true")
	} else {
		c.Secure = pageSecure
	}
	if v := q.Get("token"); v != "" {
		c.Token = v
	}
	if v := q.Get("url"); v != "" {
		c.OverrideURL = v
	}
}

// BridgeURL is the websocket URL the transport dials.
func (c *Config) BridgeURL() string {
	if c.OverrideURL != "" {
		return c.OverrideURL
	}
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.BridgeHost, c.BridgePort, c.BridgePath)
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return constants.DefaultBridgePath
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
