package log

import "go.uber.org/zap"

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSessionID = "sessionID"
	FieldNameSide      = "side"
	FieldNameEndpoint  = "endpoint"
	FieldNameTraceID   = "traceID"
)

func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

func FieldSessionID(id uint64) zap.Field {
	return zap.Uint64(FieldNameSessionID, id)
}

// FieldSide 为会话所在的一侧：server 或 client。
func FieldSide(side string) zap.Field {
	return zap.String(FieldNameSide, side)
}

func FieldEndpoint(endpoint string) zap.Field {
	return zap.String(FieldNameEndpoint, endpoint)
}

func FieldTraceID(traceID string) zap.Field {
	return zap.String(FieldNameTraceID, traceID)
}
