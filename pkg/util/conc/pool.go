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


package conc

import (
	"fmt"

	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/wsgarden/pkg/util/hardware"
)

// Pool 基于 ants 的协程池, 提交任务后返回 Future。
type Pool[T any] struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建容量为 cap 的协程池, cap <= 0 时使用 CPU 核数。
func NewPool[T any](cap int, opts ...PoolOption) *Pool[T] {
	if cap <= 0 {
		cap = hardware.GetCPUNum()
	}
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	return &Pool[T]{
		inner: pool,
		opt:   opt,
	}
}

// NewDefaultPool 创建容量为 CPU 核数的协程池。
func NewDefaultPool[T any](opts ...PoolOption) *Pool[T] {
	return NewPool[T](hardware.GetCPUNum(), opts...)
}

// Submit 提交任务, 任务被拒绝时返回的 Future 立即携带提交错误。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := pool.inner.Submit(func() {
		var (
			value T
			err   error
		)
		defer func() {
			if x := recover(); x != nil {
				future.complete(value, fmt.Errorf("panicked with error: %v", x))
				panic(x)
			}
			future.complete(value, err)
		}()
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		value, err = method()
	})
	if err != nil {
		var zero T
		future.complete(zero, err)
	}

	return future
}

// Execute 提交一个无返回值的任务, 仅返回提交阶段的错误,
// 例如非阻塞模式下池已满时返回 ants.ErrPoolOverload。
func (pool *Pool[T]) Execute(task func()) error {
	return pool.inner.Submit(func() {
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		task()
	})
}

func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

func (pool *Pool[T]) Free() int {
	return pool.inner.Free()
}

func (pool *Pool[T]) Release() {
	pool.inner.Release()
}
