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

import "go.uber.org/atomic"

type future interface {
	wait()
	OK() bool
	Err() error
}

// Future 表示一个异步计算结果, 可以通过 Await 阻塞等待。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
	done  atomic.Bool
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

func (future *Future[T]) complete(value T, err error) {
	future.value, future.err = value, err
	future.done.Store(true)
	close(future.ch)
}

func (future *Future[T]) wait() {
	<-future.ch
}

// Await 阻塞直到结果就绪, 返回结果与错误。
func (future *Future[T]) Await() (T, error) {
	future.wait()
	return future.value, future.err
}

// Value 阻塞直到结果就绪, 仅返回结果。
func (future *Future[T]) Value() T {
	future.wait()
	return future.value
}

// Done 非阻塞地判断结果是否就绪。
func (future *Future[T]) Done() bool {
	return future.done.Load()
}

// OK 阻塞直到结果就绪, 无错误时返回 true。
func (future *Future[T]) OK() bool {
	future.wait()
	return future.err == nil
}

// Err 阻塞直到结果就绪, 返回错误。
func (future *Future[T]) Err() error {
	future.wait()
	return future.err
}

// Inner 返回结果就绪时关闭的 channel, 可用于 select。
func (future *Future[T]) Inner() <-chan struct{} {
	return future.ch
}

// Go 在新的协程中执行 fn, 并返回对应的 Future。
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		var (
			value T
			err   error
		)
		defer func() {
			future.complete(value, err)
		}()
		value, err = fn()
	}()
	return future
}

// AwaitAll 等待全部 Future 完成, 返回遇到的第一个错误。
func AwaitAll[T future](futures ...T) error {
	var firstErr error
	for i := range futures {
		if !futures[i].OK() && firstErr == nil {
			firstErr = futures[i].Err()
		}
	}
	return firstErr
}
