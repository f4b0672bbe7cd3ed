package cmd

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/config"
	"github.com/techie-mohit/videoCalling/internal/peer"
	"github.com/techie-mohit/videoCalling/internal/signalclient"
)

// ConnectionContext holds everything one command needs to talk to the
// signaling server.
type ConnectionContext struct {
	Client  *signalclient.Client
	Handler *signalclient.Handler
	API     *signalclient.API
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	client := signalclient.NewClient(signalclient.Options{
		URL:   cfg.WebSocketURL,
		Codec: cfg.Codec,
		Token: cfg.Token,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, callerr.Wrap("connect to server", callerr.ErrSignalingClosed, err.Error())
	}

	handler := signalclient.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		API:     signalclient.NewAPI(cfg.HTTPURL, cfg.Token),
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// ICEServers asks the server for STUN and TURN servers and falls back to
// the local configuration when it can't. A locally configured TURN server
// is always added.
func (c *ConnectionContext) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	identity := c.Config.Email
	if identity == "" {
		identity = c.Config.Name
	}
	ice, err := c.API.ICEConfig(ctx, identity)
	if err != nil {
		log.Warn().Err(err).Msg("ice config unavailable, using local servers")
		if stun := c.Config.GetSTUNServers(); stun != nil {
			servers = append(servers, webrtc.ICEServer{URLs: stun})
		}
	} else {
		servers = ice.WebRTC()
	}

	if turn := c.Config.GetTURNServers(); turn != nil {
		user, pass := c.Config.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:           turn,
			Username:       user,
			Credential:     pass,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	if c.Config.ForceRelay && !peer.HasTURN(servers) {
		return nil, errors.New("cannot force relay mode without a TURN server configured")
	}
	return servers, nil
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, callerr.New("load config", err)
	}
	return cfg, nil
}
