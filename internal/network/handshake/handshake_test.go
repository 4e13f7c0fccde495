package handshake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/encoding"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

type stubHandshake struct {
	name    string
	matches bool
	called  int
}

func (h *stubHandshake) Name() string { return h.name }

func (h *stubHandshake) Matches(Exchange) bool { return h.matches }

func (h *stubHandshake) Handshake(ex Exchange, _ *Target) (*Result, error) {
	h.called++
	ch, err := ex.Upgrade(UpgradeOptions{})
	if err != nil {
		return nil, err
	}
	return &Result{Channel: ch, Subprotocol: h.name}, nil
}

type strictOrigin struct {
	endpoint.DefaultServerConfigurator
}

func (strictOrigin) CheckOrigin(origin string) bool {
	return origin == "https://trusted.example"
}

// 无视端点声明，总是选中客户端请求的全部扩展
type greedyExtensions struct {
	endpoint.DefaultServerConfigurator
}

func (greedyExtensions) NegotiatedExtensions(_, requested []negotiation.Extension) []negotiation.Extension {
	return requested
}

type headerStamp struct {
	endpoint.DefaultServerConfigurator
}

func (headerStamp) ModifyHandshake(_ *endpoint.ServerConfig, req *endpoint.HandshakeRequest, resp *negotiation.Headers) {
	resp.Set("X-Room", req.PathParameters["room"])
}

type HandshakeSuite struct {
	suite.Suite
	codecs *encoding.Factory
}

func (s *HandshakeSuite) SetupSuite() {
	s.codecs = encoding.NewFactory()
}

func (s *HandshakeSuite) target(cfg endpoint.ServerConfig) *Target {
	if cfg.Path == "" {
		cfg.Path = "/chat/{room}"
	}
	cfg.Factory = endpoint.Singleton(session.NopEndpoint{})
	ep, err := endpoint.NewConfiguredServerEndpoint(cfg, s.codecs)
	s.Require().NoError(err)
	return &Target{
		Endpoint:            ep,
		PathParameters:      map[string]string{"room": "1"},
		InstalledExtensions: []negotiation.Extension{{Name: negotiation.PerMessageDeflate}},
	}
}

func (s *HandshakeSuite) exchange(mutate func(h *negotiation.Headers)) *MemoryExchange {
	h := StandardRequestHeaders()
	if mutate != nil {
		mutate(h)
	}
	uri, _ := url.Parse("ws://localhost/chat/1?x=y")
	return NewMemoryExchange(context.Background(), uri, h)
}

func (s *HandshakeSuite) TestFirstMatchWins() {
	first := &stubHandshake{name: "first", matches: true}
	second := &stubHandshake{name: "second", matches: true}
	set := NewSet(&stubHandshake{name: "never"}, first)
	set.Add(second)
	s.Equal([]string{"never", "first", "second"}, set.Names())

	var got *Result
	state, err := set.Perform(s.exchange(nil), s.target(endpoint.ServerConfig{}), func(res *Result) error {
		got = res
		return nil
	})
	s.NoError(err)
	s.Equal(StateUpgraded, state)
	s.Equal("first", got.Subprotocol)
	s.Equal(1, first.called)
	s.Equal(0, second.called)
}

func (s *HandshakeSuite) TestNoMatchIsRejectedWithoutError() {
	set := NewSet()
	ex := s.exchange(func(h *negotiation.Headers) {
		h.Set(negotiation.HeaderSecWebSocketVersion, "8")
	})
	called := false
	state, err := set.Perform(ex, s.target(endpoint.ServerConfig{}), func(*Result) error {
		called = true
		return nil
	})
	s.NoError(err)
	s.Equal(StateRejected, state)
	s.False(called)
	s.Nil(ex.Peer())
}

func (s *HandshakeSuite) TestSubprotocolNegotiation() {
	ex := s.exchange(func(h *negotiation.Headers) {
		h.Set(negotiation.HeaderSecWebSocketProtocol, "b, a")
	})
	var got *Result
	state, err := NewSet().Perform(ex, s.target(endpoint.ServerConfig{Subprotocols: []string{"a", "b"}}), func(res *Result) error {
		got = res
		return nil
	})
	s.Require().NoError(err)
	s.Equal(StateUpgraded, state)
	s.Equal("a", got.Subprotocol)
	s.Equal("a", ex.ResponseHeaders().Get(negotiation.HeaderSecWebSocketProtocol))
	s.Equal("x=y", got.Request.QueryString())
	s.NotNil(ex.Peer())

	ex = s.exchange(func(h *negotiation.Headers) {
		h.Set(negotiation.HeaderSecWebSocketProtocol, "c")
	})
	_, err = NewSet().Perform(ex, s.target(endpoint.ServerConfig{Subprotocols: []string{"a", "b"}}), func(res *Result) error {
		got = res
		return nil
	})
	s.NoError(err)
	s.Equal("", got.Subprotocol)
	s.False(ex.ResponseHeaders().Has(negotiation.HeaderSecWebSocketProtocol))
}

func (s *HandshakeSuite) TestOriginRejected() {
	ex := s.exchange(func(h *negotiation.Headers) {
		h.Set(negotiation.HeaderOrigin, "https://evil.example")
	})
	state, err := NewSet().Perform(ex, s.target(endpoint.ServerConfig{Configurator: strictOrigin{}}), func(*Result) error {
		s.Fail("continuation must not run")
		return nil
	})
	s.ErrorIs(err, merr.ErrOriginNotAllowed)
	s.Equal(StateRejected, state)
	status, _ := ex.Status()
	s.Equal(http.StatusForbidden, status)
}

func (s *HandshakeSuite) TestCompressionSelectedWhenDeclared() {
	ex := s.exchange(func(h *negotiation.Headers) {
		h.Set(negotiation.HeaderSecWebSocketExtensions, "permessage-deflate; client_max_window_bits, x-unknown")
	})
	var got *Result
	_, err := NewSet().Perform(ex, s.target(endpoint.ServerConfig{
		Extensions: []negotiation.Extension{{Name: negotiation.PerMessageDeflate}},
	}), func(res *Result) error {
		got = res
		return nil
	})
	s.Require().NoError(err)
	s.Equal([]string{negotiation.PerMessageDeflate}, negotiation.ExtensionNames(got.Extensions))
	s.Equal("permessage-deflate; server_no_context_takeover; client_no_context_takeover", got.Extensions[0].String())
	s.True(ex.Options().Compression)
	s.False(ex.ResponseHeaders().Has(negotiation.HeaderSecWebSocketExtensions))
}

func (s *HandshakeSuite) TestUndeclaredExtensionRejected() {
	ex := s.exchange(func(h *negotiation.Headers) {
		h.Set(negotiation.HeaderSecWebSocketExtensions, "x-unknown")
	})
	state, err := NewSet().Perform(ex, s.target(endpoint.ServerConfig{Configurator: greedyExtensions{}}), func(*Result) error {
		return nil
	})
	s.ErrorIs(err, merr.ErrUnadvertisedExtension)
	s.Equal(StateRejected, state)
	status, _ := ex.Status()
	s.Equal(http.StatusInternalServerError, status)
}

func (s *HandshakeSuite) TestHTTPExchange() {
	target := s.target(endpoint.ServerConfig{Subprotocols: []string{"chat"}, Configurator: headerStamp{}})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ex := NewHTTPExchange(w, r, time.Second, 0)
		state, err := NewSet().Perform(ex, target, func(res *Result) error {
			mt, data, err := res.Channel.ReadMessage()
			if err != nil {
				return err
			}
			return res.Channel.WriteMessage(mt, data, time.Time{})
		})
		if state == StateRejected && err == nil {
			ex.EndExchange(http.StatusNotFound, "no handshake")
		}
	}))
	defer srv.Close()

	dialer := websocket.Dialer{Subprotocols: []string{"other", "chat"}}
	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat/1", nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.Equal("chat", conn.Subprotocol())
	s.Equal("1", resp.Header.Get("X-Room"))

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	mt, data, err := conn.ReadMessage()
	s.Require().NoError(err)
	s.Equal(int(network.TextMessage), mt)
	s.Equal("ping", string(data))

	// 普通 HTTP 请求不匹配任何策略
	plain, err := http.Get(srv.URL)
	s.Require().NoError(err)
	plain.Body.Close()
	s.Equal(http.StatusNotFound, plain.StatusCode)
}

func TestHandshake(t *testing.T) {
	suite.Run(t, new(HandshakeSuite))
}
