package signalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/techie-mohit/videoCalling/internal/dns"
	"github.com/techie-mohit/videoCalling/internal/iceconfig"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// API talks to the HTTP endpoints next to the websocket.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DialContext: dns.DialContext, Proxy: http.ProxyFromEnvironment},
		},
	}
}

func (a *API) Stats(ctx context.Context) (*protocol.ServerStats, error) {
	var out protocol.ServerStats
	if err := a.get(ctx, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestRoom asks the server for an unused room id.
func (a *API) SuggestRoom(ctx context.Context) (string, error) {
	var out protocol.RoomSuggestion
	if err := a.get(ctx, "/rooms/suggest", nil, &out); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

// ICEConfig fetches STUN and TURN servers issued for identity.
func (a *API) ICEConfig(ctx context.Context, identity string) (*iceconfig.Config, error) {
	var out iceconfig.Config
	if err := a.get(ctx, "/ice-config", url.Values{"identity": {identity}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) get(ctx context.Context, path string, query url.Values, v any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
