// Package iceconfig hands out STUN and TURN servers. TURN credentials follow
// the TURN REST scheme: the username is "<expiry>:<participant>" and the
// credential is base64(HMAC-SHA1(secret, username)).
package iceconfig

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pion/webrtc/v4"
)

const DefaultTTL = 12 * time.Hour

type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type Config struct {
	ICEServers []Server `json:"iceServers"`
	// TTL is the credential lifetime in seconds.
	TTL int `json:"ttl,omitempty"`
}

// WebRTC converts c into the pion configuration form.
func (c Config) WebRTC() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}

type Options struct {
	STUN []string
	TURN []string
	// Secret enables time-limited credentials. Without it the static
	// username and password are used.
	Secret        string
	Username      string
	Password      string
	CredentialTTL time.Duration
}

// Provider builds per-participant configurations. Generated credentials are
// cached for half their lifetime so repeated requests reuse them.
type Provider struct {
	opts  Options
	cache *ttlcache.Cache[string, Config]
	now   func() time.Time
}

func NewProvider(opts Options) *Provider {
	if opts.CredentialTTL <= 0 {
		opts.CredentialTTL = DefaultTTL
	}
	p := &Provider{opts: opts, now: time.Now}
	p.cache = ttlcache.New[string, Config](
		ttlcache.WithTTL[string, Config](opts.CredentialTTL/2),
		ttlcache.WithDisableTouchOnHit[string, Config](),
		ttlcache.WithLoader[string, Config](ttlcache.LoaderFunc[string, Config](
			func(c *ttlcache.Cache[string, Config], participant string) *ttlcache.Item[string, Config] {
				return c.Set(participant, p.build(participant), ttlcache.DefaultTTL)
			},
		)),
	)
	return p
}

// Start runs the expiry loop until Stop is called.
func (p *Provider) Start() {
	go p.cache.Start()
}

func (p *Provider) Stop() {
	p.cache.Stop()
}

func (p *Provider) For(participant string) Config {
	if p.opts.Secret == "" || len(p.opts.TURN) == 0 {
		return p.build(participant)
	}
	return p.cache.Get(participant).Value()
}

func (p *Provider) build(participant string) Config {
	var cfg Config
	if len(p.opts.STUN) > 0 {
		cfg.ICEServers = append(cfg.ICEServers, Server{URLs: p.opts.STUN})
	}
	if len(p.opts.TURN) == 0 {
		return cfg
	}

	turn := Server{URLs: p.opts.TURN, Username: p.opts.Username, Credential: p.opts.Password}
	if p.opts.Secret != "" {
		expiry := p.now().Add(p.opts.CredentialTTL)
		turn.Username = fmt.Sprintf("%d:%s", expiry.Unix(), participant)
		turn.Credential = Credential(p.opts.Secret, turn.Username)
		cfg.TTL = int(p.opts.CredentialTTL / time.Second)
	}
	cfg.ICEServers = append(cfg.ICEServers, turn)
	return cfg
}

// Credential computes the TURN REST password for username.
func Credential(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
