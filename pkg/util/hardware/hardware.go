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


package hardware

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/pkg/log"
)

var (
	cpuNumOnce sync.Once
	cpuNum     int
)

// GetCPUNum 返回可用的逻辑 CPU 核数, 结果只探测一次。
// gopsutil 探测失败时退化为 runtime.NumCPU。
func GetCPUNum() int {
	cpuNumOnce.Do(func() {
		cpuNum = runtime.NumCPU()
		count, err := cpu.Counts(true)
		if err != nil {
			log.Warn("failed to get cpu counts", zap.Error(err))
			return
		}
		// GOMAXPROCS 可能被 automaxprocs 按 cgroup 配额下调, 取两者较小值
		if count > 0 && count < cpuNum {
			cpuNum = count
		}
		if procs := runtime.GOMAXPROCS(0); procs > 0 && procs < cpuNum {
			cpuNum = procs
		}
	})
	return cpuNum
}
