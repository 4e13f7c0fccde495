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
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogMaxSize = 300 // MB

// FileLogConfig 为滚动日志文件配置。
type FileLogConfig struct {
	RootPath string `mapstructure:"rootpath" json:"rootpath"`
	// Filename 留空表示不写文件。
	Filename   string `mapstructure:"filename" json:"filename"`
	MaxSize    int    `mapstructure:"max-size" json:"max-size"`
	MaxDays    int    `mapstructure:"max-days" json:"max-days"`
	MaxBackups int    `mapstructure:"max-backups" json:"max-backups"`
}

// Config 为日志配置，通过 viper 从 logging.<name> 节点解析。
type Config struct {
	Level string `mapstructure:"level" json:"level"`
	// Format 可选 text、console 或 json，默认 text。
	Format           string        `mapstructure:"format" json:"format"`
	DisableTimestamp bool          `mapstructure:"disable-timestamp" json:"disable-timestamp"`
	Stdout           bool          `mapstructure:"stdout" json:"stdout"`
	File             FileLogConfig `mapstructure:"file" json:"file"`
	// Development 为 true 时 Warn 及以上级别附带堆栈。
	Development       bool `mapstructure:"development" json:"development"`
	DisableCaller     bool `mapstructure:"disable-caller" json:"disable-caller"`
	DisableStacktrace bool `mapstructure:"disable-stacktrace" json:"disable-stacktrace"`
	// Sampling 以秒为周期采样，高频会话日志可借此限流。
	Sampling *zap.SamplingConfig `mapstructure:"sampling" json:"sampling"`
}

// ZapProperties 记录 logger 的输出与可调级别。
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func (cfg *Config) buildOptions(errSink zapcore.WriteSyncer) []zap.Option {
	opts := []zap.Option{zap.ErrorOutput(errSink)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if !cfg.DisableStacktrace {
		stackLevel := zap.ErrorLevel
		if cfg.Development {
			stackLevel = zap.WarnLevel
		}
		opts = append(opts, zap.AddStacktrace(stackLevel))
	}
	if s := cfg.Sampling; s != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, s.Initial, s.Thereafter, zapcore.SamplerHook(s.Hook))
		}))
	}
	return opts
}
