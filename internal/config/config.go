package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// Default configuration values
const (
	DefaultDomain      = "localhost:8080"
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultSettleDelay = 300 * time.Millisecond
)

// Config holds the call client configuration.
type Config struct {
	// Domain is the signaling server host, with an optional port.
	Domain   string
	Insecure bool

	// Derived from Domain.
	WebSocketURL string
	HTTPURL      string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Email string
	Name  string
	Token string

	Codec protocol.Codec

	// Media sources. Empty paths select synthetic media.
	AudioFile string
	VideoFile string

	// SettleDelay is how long the caller waits after learning its role
	// before sending an offer.
	SettleDelay time.Duration
}

// Options carries command line overrides. Zero values fall through to the
// environment.
type Options struct {
	Domain      string
	Insecure    bool
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	Email       string
	Name        string
	Token       string
	Codec       string
	AudioFile   string
	VideoFile   string
	SettleDelay time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Domain:     pick(opts.Domain, "DOMAIN", DefaultDomain),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		Email:      pick(opts.Email, "WARPCALL_EMAIL", ""),
		Name:       pick(opts.Name, "WARPCALL_NAME", ""),
		Token:      pick(opts.Token, "WARPCALL_TOKEN", ""),
		AudioFile:  pick(opts.AudioFile, "WARPCALL_AUDIO_FILE", ""),
		VideoFile:  pick(opts.VideoFile, "WARPCALL_VIDEO_FILE", ""),
	}

	var err error
	if cfg.Insecure, err = pickBool(opts.Insecure, "INSECURE", isLocal(cfg.Domain)); err != nil {
		return nil, err
	}
	if cfg.ForceRelay, err = pickBool(opts.ForceRelay, "FORCE_RELAY", false); err != nil {
		return nil, err
	}

	codec := pick(opts.Codec, "WARPCALL_CODEC", protocol.JSON.Name())
	if cfg.Codec, err = protocol.CodecByName(codec); err != nil {
		return nil, errors.Wrap(err, "WARPCALL_CODEC")
	}

	cfg.SettleDelay = opts.SettleDelay
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	if cfg.Email == "" && cfg.Token == "" {
		cfg.Email = defaultIdentity()
	}

	wsScheme, httpScheme := "wss", "https"
	if cfg.Insecure {
		wsScheme, httpScheme = "ws", "http"
	}
	cfg.WebSocketURL = fmt.Sprintf("%s://%s/ws", wsScheme, cfg.Domain)
	cfg.HTTPURL = fmt.Sprintf("%s://%s", httpScheme, cfg.Domain)

	return cfg, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return strings.Split(c.STUNServer, ",")
}

// GetTURNServers returns TURN server URLs if configured. A bare host expands
// to UDP, TCP and TLS variants.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?") || strings.Count(c.TURNServer, ":") > 1 {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RoomLink is the web app address of a room.
func (c *Config) RoomLink(roomID string, mod protocol.Modality) string {
	path := "room"
	if mod == protocol.Audio {
		path = "audio"
	}
	return fmt.Sprintf("%s/%s/%s", c.HTTPURL, path, roomID)
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func pickBool(flag bool, env string, def bool) (bool, error) {
	if flag {
		return true, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s", env)
	}
	return b, nil
}

func isLocal(domain string) bool {
	host := domain
	if i := strings.LastIndex(domain, ":"); i > 0 && !strings.HasSuffix(domain, "]") {
		host = domain[:i]
	}
	return host == "localhost" || host == "127.0.0.1" || host == "[::1]"
}

func defaultIdentity() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "guest"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return user + "@" + host
}
