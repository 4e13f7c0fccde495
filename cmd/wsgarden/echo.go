package main

import (
	"strings"

	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/log"
)

// echoEndpoint 按房间回显消息，子协议为 echo.upper 时转为大写。
type echoEndpoint struct {
	session.NopEndpoint
}

func (echoEndpoint) ServerEndpoint() endpoint.ServerConfig {
	return endpoint.ServerConfig{
		Path:         "/ws/echo/{room}",
		Subprotocols: []string{"echo.upper", "echo"},
		Extensions:   []negotiation.Extension{{Name: negotiation.PerMessageDeflate}},
		Factory:      endpoint.Singleton(echoEndpoint{}),
	}
}

func (echoEndpoint) OnOpen(s *session.Session) {
	room, _ := s.PathParameter("room")
	log.Info("echo session opened", zap.Uint64("sessionID", s.ID()), zap.String("room", room),
		zap.String("subprotocol", s.Subprotocol()))
}

func (echoEndpoint) OnMessage(s *session.Session, mt network.MessageType, data []byte) {
	if mt == network.BinaryMessage {
		_ = s.SendBinary(data)
		return
	}
	text := string(data)
	if s.Subprotocol() == "echo.upper" {
		text = strings.ToUpper(text)
	}
	room, _ := s.PathParameter("room")
	if err := s.SendText(room + ": " + text); err != nil {
		log.Warn("echo send failed", zap.Uint64("sessionID", s.ID()), zap.Error(err))
	}
}

func (echoEndpoint) OnClose(s *session.Session, reason session.CloseReason) {
	log.Info("echo session closed", zap.Uint64("sessionID", s.ID()), zap.Stringer("reason", reason))
}
