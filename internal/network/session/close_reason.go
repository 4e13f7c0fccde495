package session

import "fmt"

// CloseCode 为 RFC 6455 第 7.4 节定义的关闭状态码。
type CloseCode int

const (
	CloseNormalClosure       CloseCode = 1000
	CloseGoingAway           CloseCode = 1001
	CloseProtocolError       CloseCode = 1002
	CloseUnsupportedData     CloseCode = 1003
	CloseNoStatusReceived    CloseCode = 1005
	CloseAbnormalClosure     CloseCode = 1006
	CloseInvalidPayload      CloseCode = 1007
	ClosePolicyViolation     CloseCode = 1008
	CloseMessageTooBig       CloseCode = 1009
	CloseMandatoryExtension  CloseCode = 1010
	CloseUnexpectedCondition CloseCode = 1011
)

// Sendable 判断该状态码能否出现在关闭帧中；1005/1006 只用于本地表示。
func (c CloseCode) Sendable() bool {
	return c != CloseNoStatusReceived && c != CloseAbnormalClosure
}

// CloseReason 为会话关闭原因。
type CloseReason struct {
	Code CloseCode
	Text string
}

func NewCloseReason(code CloseCode, text string) CloseReason {
	return CloseReason{Code: code, Text: text}
}

func (r CloseReason) String() string {
	if r.Text == "" {
		return fmt.Sprintf("%d", r.Code)
	}
	return fmt.Sprintf("%d: %s", r.Code, r.Text)
}

// CloseError 由 Channel.ReadMessage 在收到对端关闭帧时返回。
type CloseError struct {
	Reason CloseReason
}

func (e *CloseError) Error() string {
	return "peer closed: " + e.Reason.String()
}
