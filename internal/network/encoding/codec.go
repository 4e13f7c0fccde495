package encoding

import (
	"github.com/lk2023060901/wsgarden/internal/network"
)

// Serializer 抽象了“对象 <-> 字节流”的序列化能力。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象，v 通常为指针类型。
	Unmarshal(data []byte, v any) error
}

// Codec 为端点可声明的编解码器：在 Serializer 之上声明名称、承载的消息类型，
// 以及能处理的 Go 类型。
type Codec interface {
	Serializer

	// Name 为注册与声明时使用的名称。
	Name() string

	// MessageType 为编码结果使用的消息类型，解码时也只接受该类型的消息。
	MessageType() network.MessageType

	// Accepts 判断能否编码 v，或能否解码到 v。
	Accepts(v any) bool
}
