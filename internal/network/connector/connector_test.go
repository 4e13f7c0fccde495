package connector

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

type tokenConfigurator struct {
	mu       sync.Mutex
	response string
}

func (c *tokenConfigurator) BeforeRequest(h *negotiation.Headers) {
	h.Set("X-Token", "secret")
}

func (c *tokenConfigurator) AfterResponse(h *negotiation.Headers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.response = h.Get("sec-websocket-protocol")
}

func echoServer(t *testing.T, seen chan<- http.Header) *httptest.Server {
	upgrader := websocket.Upgrader{
		Subprotocols:      []string{"chat"},
		EnableCompression: true,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen <- r.Header.Clone()
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(t *testing.T, srv *httptest.Server) *url.URL {
	u, err := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	return u
}

func TestWSTransportConnect(t *testing.T) {
	seen := make(chan http.Header, 1)
	srv := echoServer(t, seen)
	defer srv.Close()

	conf := &tokenConfigurator{}
	neg := negotiation.NewClientNegotiation(
		[]string{"chat", "other"},
		[]negotiation.Extension{{Name: negotiation.PerMessageDeflate}},
		conf,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := NewWSTransport(0).Connect(ctx, &Request{
		URL:         wsURL(t, srv),
		BindAddress: "127.0.0.1",
		Negotiation: neg,
	})
	require.NoError(t, err)
	defer res.Channel.Close()

	header := <-seen
	assert.Equal(t, "secret", header.Get("X-Token"))
	assert.Contains(t, header.Get("Sec-WebSocket-Extensions"), negotiation.PerMessageDeflate)

	assert.Equal(t, "chat", res.Subprotocol)
	assert.Equal(t, []string{negotiation.PerMessageDeflate}, negotiation.ExtensionNames(res.Extensions))
	assert.Empty(t, res.Response.Get("Sec-WebSocket-Protocol"))
	conf.mu.Lock()
	assert.Equal(t, "chat", conf.response)
	conf.mu.Unlock()

	host, _, err := net.SplitHostPort(res.Channel.LocalAddr().String())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	require.NoError(t, res.Channel.WriteMessage(network.TextMessage, []byte("hello"), time.Time{}))
	_, data, err := res.Channel.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWSTransportHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWSTransport(0).Connect(context.Background(), &Request{URL: wsURL(t, srv)})
	assert.ErrorIs(t, err, merr.ErrIoFailed)
	assert.ErrorIs(t, err, merr.ErrHandshakeRejected)

	_, err = NewWSTransport(0).Connect(context.Background(), &Request{})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	_, err = NewWSTransport(0).Connect(context.Background(), &Request{URL: wsURL(t, srv), BindAddress: "not an address:x"})
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestResolveTLS(t *testing.T) {
	u, _ := url.Parse("wss://example.com/ws")
	custom := &tls.Config{ServerName: "custom"}

	cfg := ResolveTLS([]TLSProvider{
		nil,
		TLSProviderFunc(func(*url.URL) *tls.Config { return nil }),
		TLSProviderFunc(func(*url.URL) *tls.Config { return custom }),
		TLSProviderFunc(func(*url.URL) *tls.Config { return &tls.Config{ServerName: "late"} }),
	}, u)
	assert.Same(t, custom, cfg)

	def := ResolveTLS(nil, u)
	require.NotNil(t, def)
	assert.Equal(t, uint16(tls.VersionTLS12), def.MinVersion)

	assert.True(t, IsSecure(u))
	plain, _ := url.Parse("ws://example.com")
	assert.False(t, IsSecure(plain))
}
