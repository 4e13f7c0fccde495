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


package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// wsgardenNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	wsgardenNamespace = "wsgarden"

	containerSubsystem = "container"

	// 以下为当前使用的通用标签名。
	sideLabelName   = "side"
	resultLabelName = "result"
	stageLabelName  = "stage"

	SuccessLabel    = "success"
	FailLabel       = "fail"
	RejectedLabel   = "rejected"
	TimeoutLabel    = "timeout"
	NotMatchedLabel = "not_matched"
)

var (
	// buckets 为耗时直方图的桶划分，单位为秒。
	// 实际桶分布为：[0.001 0.002 0.004 ... 32.768]
	buckets = prometheus.ExponentialBuckets(0.001, 2, 16)

	ContainerOpenSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: wsgardenNamespace,
			Subsystem: containerSubsystem,
			Name:      "open_sessions",
			Help:      "当前处于打开状态的会话数",
		}, []string{sideLabelName})

	ContainerHandshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: wsgardenNamespace,
			Subsystem: containerSubsystem,
			Name:      "handshakes_total",
			Help:      "服务端升级握手次数，按结果区分",
		}, []string{resultLabelName})

	ContainerConnectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: wsgardenNamespace,
			Subsystem: containerSubsystem,
			Name:      "connect_duration_seconds",
			Help:      "客户端连接耗时，按结果区分",
			Buckets:   buckets,
		}, []string{resultLabelName})

	ContainerDispatchFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: wsgardenNamespace,
			Subsystem: containerSubsystem,
			Name:      "dispatch_fallbacks_total",
			Help:      "协程池拒绝任务后退化为直接执行的次数",
		})

	ContainerCallbackErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: wsgardenNamespace,
			Subsystem: containerSubsystem,
			Name:      "callback_errors_total",
			Help:      "端点回调出错次数，按阶段区分",
		}, []string{stageLabelName})

	ContainerDrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: wsgardenNamespace,
			Subsystem: containerSubsystem,
			Name:      "drain_duration_seconds",
			Help:      "暂停或关闭容器时排空全部会话的耗时",
			Buckets:   buckets,
		})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册容器相关的全部指标，重复调用只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ContainerOpenSessions)
		r.MustRegister(ContainerHandshakes)
		r.MustRegister(ContainerConnectDuration)
		r.MustRegister(ContainerDispatchFallbacks)
		r.MustRegister(ContainerCallbackErrors)
		r.MustRegister(ContainerDrainDuration)
		metricRegisterer = r
	})
}
