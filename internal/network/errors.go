package network

// Stage 表示会话生命周期中的处理阶段。
//
// 主要用于日志与监控标签中标记错误发生的位置，便于排查。
type Stage string

const (
	StageHandshake Stage = "handshake" // 升级握手与协商
	StageConnect   Stage = "connect"   // 客户端发起连接
	StageOpen      Stage = "open"      // onOpen 回调
	StageRecv      Stage = "recv"      // 读取底层消息
	StageDecode    Stage = "decode"    // 原始字节 -> 业务对象
	StageDispatch  Stage = "dispatch"  // 回调派发
	StageEncode    Stage = "encode"    // 业务对象 -> 原始字节
	StageSend      Stage = "send"      // 底层发送
	StageClose     Stage = "close"     // 关闭会话
	StageDrain     Stage = "drain"     // 暂停/关闭容器时排空会话
)

func (s Stage) String() string {
	return string(s)
}

// MessageType 为数据消息类型，取值与 RFC 6455 操作码一致。
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Side 表示会话由哪一端发起。
type Side string

const (
	ServerSide Side = "server"
	ClientSide Side = "client"
)
