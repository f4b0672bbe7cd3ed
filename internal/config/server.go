package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPort            = "8080"
	DefaultMessageRate     = 50
	DefaultMessageBurst    = 100
	DefaultCredentialTTL   = 12 * time.Hour
	DefaultShutdownTimeout = 10 * time.Second
)

// Server holds the signaling server configuration.
type Server struct {
	Addr string

	// JWTSecret verifies session tokens. Empty accepts every connection
	// anonymously.
	JWTSecret string

	// AllowedOrigins are accepted in addition to origin-less requests and
	// any http://localhost:<port>.
	AllowedOrigins []string

	STUNServers   []string
	TURNServers   []string
	TURNSecret    string
	TURNUser      string
	TURNPass      string
	CredentialTTL time.Duration

	MessageRate  float64
	MessageBurst int

	ShutdownTimeout time.Duration
}

// ServerOptions carries command line overrides.
type ServerOptions struct {
	Port          string
	JWTSecret     string
	Origins       string
	STUNServers   string
	TURNServers   string
	TURNSecret    string
	CredentialTTL time.Duration
	MessageRate   float64
	MessageBurst  int
}

// LoadServer applies the same priority as Load: flag, then environment, then
// default.
func LoadServer(opts ServerOptions) (*Server, error) {
	cfg := &Server{
		Addr:            ":" + pick(opts.Port, "PORT", DefaultPort),
		JWTSecret:       pick(opts.JWTSecret, "JWT_SECRET", ""),
		AllowedOrigins:  splitList(pick(opts.Origins, "FRONTEND_URL", "")),
		STUNServers:     splitList(pick(opts.STUNServers, "STUN_SERVER", DefaultSTUN)),
		TURNServers:     splitList(pick(opts.TURNServers, "TURN_SERVER", "")),
		TURNSecret:      pick(opts.TURNSecret, "TURN_SECRET", ""),
		TURNUser:        os.Getenv("TURN_USERNAME"),
		TURNPass:        os.Getenv("TURN_PASSWORD"),
		CredentialTTL:   opts.CredentialTTL,
		MessageRate:     opts.MessageRate,
		MessageBurst:    opts.MessageBurst,
		ShutdownTimeout: DefaultShutdownTimeout,
	}

	var err error
	if cfg.CredentialTTL <= 0 {
		if cfg.CredentialTTL, err = durationEnv("TURN_TTL", DefaultCredentialTTL); err != nil {
			return nil, err
		}
	}
	if cfg.MessageRate <= 0 {
		if cfg.MessageRate, err = floatEnv("MESSAGE_RATE", DefaultMessageRate); err != nil {
			return nil, err
		}
	}
	if cfg.MessageBurst <= 0 {
		rate, err := floatEnv("MESSAGE_BURST", DefaultMessageBurst)
		if err != nil {
			return nil, err
		}
		cfg.MessageBurst = int(rate)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationEnv(env string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", env)
	}
	return d, nil
}

func floatEnv(env string, def float64) (float64, error) {
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", env)
	}
	return f, nil
}
