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
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestGo(t *testing.T) {
	future := Go(func() (int, error) {
		return 1, nil
	})
	v, err := future.Await()
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, future.Done())

	errFuture := Go(func() (int, error) {
		return 0, errors.New("mock")
	})
	assert.Error(t, errFuture.Err())
	assert.Error(t, AwaitAll(future, errFuture))
	assert.NoError(t, AwaitAll(future))
}

func TestPoolSubmit(t *testing.T) {
	pool := NewPool[int](2)
	defer pool.Release()
	assert.Equal(t, 2, pool.Cap())

	futures := make([]*Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (int, error) {
			return i, nil
		}))
	}
	assert.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i, f.Value())
	}
}

func TestPoolPreHandler(t *testing.T) {
	counter := atomic.NewInt32(0)
	pool := NewPool[struct{}](1, WithPreHandler(func() { counter.Inc() }))
	defer pool.Release()

	_, err := pool.Submit(func() (struct{}, error) { return struct{}{}, nil }).Await()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, counter.Load())
}

func TestPoolNonBlockingOverload(t *testing.T) {
	pool := NewPool[struct{}](1, WithNonBlocking(true))
	defer pool.Release()

	block := make(chan struct{})
	started := make(chan struct{})
	assert.NoError(t, pool.Execute(func() {
		close(started)
		<-block
	}))
	<-started

	err := pool.Execute(func() {})
	assert.ErrorIs(t, err, ants.ErrPoolOverload)

	future := pool.Submit(func() (struct{}, error) { return struct{}{}, nil })
	assert.True(t, future.Done())
	assert.ErrorIs(t, future.Err(), ants.ErrPoolOverload)

	close(block)
	assert.Eventually(t, func() bool { return pool.Execute(func() {}) == nil }, time.Second, 10*time.Millisecond)
}
