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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envRateEnable = "WSGARDEN_LOG_RATE_ENABLE"
	envRateCredit = "WSGARDEN_LOG_RATE_CREDIT_PER_SECOND"
	envRateMax    = "WSGARDEN_LOG_RATE_MAX_BALANCE"
)

// _globalL 带一层 caller skip，供包级 Info/Warn 等函数使用。
var _globalL, _globalP, _globalR atomic.Value

// RateLimiter 为限流日志使用的最小接口。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

func init() {
	conf := &Config{Level: "debug", Stdout: true}
	l, p, _ := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	ReplaceGlobals(l, p)
	_globalR.Store(rateLimiterFromEnv())
}

// InitLogger 按配置创建 logger，输出到文件和/或标准输出。
// 返回的 logger 带一层 caller skip，适合作为 ReplaceGlobals 的参数。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	lg, props, err := newLogger(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// NewMLogger 按配置创建独立的具名 logger，不影响全局 logger。
func NewMLogger(cfg *Config, opts ...zap.Option) (*MLogger, error) {
	lg, _, err := newLogger(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &MLogger{Logger: lg}, nil
}

func newLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if cfg.File.Filename != "" {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdout)
	}
	return InitLoggerWithWriteSyncer(cfg, zap.CombineWriteSyncers(outputs...), opts...)
}

// InitTestLogger 创建输出到 t.Log 的 logger，zap 内部错误会使测试失败。
// 只能用于在测试函数返回前完成全部日志输出的组件。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	writer := testingWriter{t: t}
	opts = append([]zap.Option{zap.ErrorOutput(writer.markingFailed())}, opts...)
	return InitLoggerWithWriteSyncer(cfg, writer, opts...)
}

// InitLoggerWithWriteSyncer 以指定的 WriteSyncer 创建 logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	levelText := cfg.Level
	switch {
	case levelText == "":
		levelText = "info"
	case strings.EqualFold(levelText, "trace"):
		levelText = "debug"
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	core := zapcore.NewCore(NewTextEncoderByConfig(cfg), output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %s is a directory", logPath)
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// L 返回全局 logger，可通过 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// R 返回限流日志使用的全局限流器，未开启时永不丢弃。
func R() RateLimiter {
	return _globalR.Load().(RateLimiter)
}

// ctxL 为去掉包级 caller skip 的全局 logger。
func ctxL() *zap.Logger {
	return L().WithOptions(zap.AddCallerSkip(-1))
}

// ReplaceGlobals 替换全局 logger，并发安全。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalP.Store(props)
}

// Level 返回全局 logger 的可调级别。
func Level() zap.AtomicLevel {
	return _globalP.Load().(*ZapProperties).Level
}

// Sync 刷新全局 logger 的缓冲。
func Sync() error {
	return L().Sync()
}

// rateLimiterFromEnv 根据 WSGARDEN_LOG_RATE_* 构造限流器，默认关闭。
func rateLimiterFromEnv() RateLimiter {
	if !envBool(envRateEnable) {
		return nopRateLimiter{}
	}
	return utils.NewRateLimiter(envFloat(envRateCredit, 1.0), envFloat(envRateMax, 60.0))
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}
