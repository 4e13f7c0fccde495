// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxLogKeyType struct{}

var CtxLogKey = ctxLogKeyType{}

// Debug 使用全局 logger 输出 Debug 日志。
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// With 创建携带额外字段的全局子 logger。
func With(fields ...zap.Field) *MLogger {
	return &MLogger{Logger: ctxL().With(fields...)}
}

// WithFields 返回一个 ctx，其中的 logger 在原有字段基础上追加 fields。
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, CtxLogKey, Ctx(ctx).With(fields...))
}

// WithSession 为 ctx 中的 logger 附加会话标识。
func WithSession(ctx context.Context, id uint64, side string, endpoint string) context.Context {
	return WithFields(ctx, FieldSessionID(id), FieldSide(side), FieldEndpoint(endpoint))
}

// WithEndpoint 为 ctx 中的 logger 附加端点标识（路径模板或客户端类型）。
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return WithFields(ctx, FieldEndpoint(endpoint))
}

// Ctx 返回 ctx 携带的 logger。
// ctx 没有 logger 但带有有效的 span 时，返回的 logger 附带 traceID。
func Ctx(ctx context.Context) *MLogger {
	if ctx == nil {
		return &MLogger{Logger: ctxL()}
	}
	if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
		return l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return &MLogger{Logger: ctxL().With(FieldTraceID(sc.TraceID().String()))}
	}
	return &MLogger{Logger: ctxL()}
}
