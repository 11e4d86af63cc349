package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const DefaultURL = "wss://agent.deepgram.com/v1/agent/converse"

// Dialer opens agent connections, authenticating with the "token" subprotocol.
type Dialer struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
}

func (d *Dialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	if d.APIKey == "" {
		return nil, errors.New("agent: DEEPGRAM_API_KEY is not set")
	}
	url := d.URL
	if url == "" {
		url = DefaultURL
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     []string{"token", d.APIKey},
	}
	conn, resp, err := wd.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "agent: dial %s: status %d", url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "agent: dial %s", url)
	}
	return conn, nil
}
