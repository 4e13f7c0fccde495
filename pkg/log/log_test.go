// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type bufferSyncer struct {
	mu    sync.Mutex
	lines []string
}

func (b *bufferSyncer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, string(p))
	return len(p), nil
}

func (b *bufferSyncer) Sync() error { return nil }

func (b *bufferSyncer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// captureGlobal 将全局 logger 替换为写入缓冲区的 logger，测试结束后恢复。
func captureGlobal(t *testing.T, level string) *bufferSyncer {
	out := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: level, Format: "json", DisableCaller: true}, out)
	require.NoError(t, err)
	prevL, prevP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg.WithOptions(zap.AddCallerSkip(1)), props)
	t.Cleanup(func() { ReplaceGlobals(prevL, prevP) })
	return out
}

func TestInitLoggerWithWriteSyncer(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		out := &bufferSyncer{}
		lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "info", Format: format}, out)
		require.NoError(t, err)
		assert.Equal(t, zapcore.InfoLevel, props.Level.Level())

		lg.With(FieldComponent("container")).Info("session opened", FieldSessionID(7))
		lg.Debug("dropped")
		lines := out.Lines()
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "session opened")
		assert.Contains(t, lines[0], "container")
	}

	_, props, err := InitLoggerWithWriteSyncer(&Config{Level: "TRACE"}, &bufferSyncer{})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())

	_, _, err = InitLoggerWithWriteSyncer(&Config{Level: "bogus"}, &bufferSyncer{})
	assert.Error(t, err)
}

func TestNewMLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	lg, err := NewMLogger(&Config{Level: "info", File: FileLogConfig{RootPath: dir, Filename: "container.log"}})
	require.NoError(t, err)
	lg.Info("endpoint registered", FieldEndpoint("/chat/{room}"))
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "container.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/chat/{room}")

	_, err = NewMLogger(&Config{File: FileLogConfig{RootPath: filepath.Dir(dir), Filename: filepath.Base(dir)}})
	assert.Error(t, err)
}

func TestInitTestLogger(t *testing.T) {
	lg, _, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)
	binder := &Binder{}
	binder.SetLogger(&MLogger{Logger: lg})
	binder.Logger().With(FieldModule("registry")).Debug("server endpoint registered")
}

func TestCtxLogger(t *testing.T) {
	out := captureGlobal(t, "debug")

	ctx := WithSession(context.Background(), 42, "server", "/chat/{room}")
	Ctx(ctx).Info("session opened")
	ctx = WithFields(ctx, zap.String("subprotocol", "chat"))
	Ctx(ctx).Info("negotiated")
	Ctx(context.Background()).Info("bare")

	lines := out.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"sessionID":42`)
	assert.Contains(t, lines[0], `"side":"server"`)
	assert.Contains(t, lines[0], `"endpoint":"/chat/{room}"`)
	assert.Contains(t, lines[1], `"sessionID":42`)
	assert.Contains(t, lines[1], `"subprotocol":"chat"`)
	assert.NotContains(t, lines[2], "sessionID")

	binder := &Binder{}
	assert.NotNil(t, binder.Logger())
	logger := With(FieldModule("container"))
	binder.SetLogger(logger)
	assert.Same(t, logger, binder.Logger())
}

func TestCtxLoggerCarriesTraceID(t *testing.T) {
	out := captureGlobal(t, "debug")

	traceID := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{0, 0, 0, 0, 0, 0, 0, 1}})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	Ctx(ctx).Info("upgrade")
	WithEndpoint(ctx, "/echo").Value(CtxLogKey).(*MLogger).Info("matched")

	lines := out.Lines()
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, traceID.String())
	}
	assert.Contains(t, lines[1], `"endpoint":"/echo"`)
}

func TestRatedWarnAndLevel(t *testing.T) {
	out := captureGlobal(t, "info")

	assert.True(t, With().RatedWarn(1, "pool overloaded"))
	Debug("hidden")
	Level().SetLevel(zapcore.DebugLevel)
	Debug("visible")

	lines := out.Lines()
	require.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[0], "pool overloaded"))
	assert.Contains(t, lines[1], "visible")
}
