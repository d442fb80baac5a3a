// Copyright 2026 The Ordos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTryReceiveEmpty(t *testing.T) {
	q := NewWaitQueue[int]()
	if _, err := q.TryReceive(); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("TryReceive() error = %v, want ErrWouldBlock", err)
	}
}

func TestSendReceiveFIFO(t *testing.T) {
	q := NewWaitQueue[int]()
	q.Send(1)
	q.Send(2)
	q.Send(3)
	var got []int
	for q.Len() > 0 {
		v, err := q.TryReceive()
		if err != nil {
			t.Fatalf("TryReceive(): %v", err)
		}
		got = append(got, v)
	}
	if !cmp.Equal(got, []int{1, 2, 3}) {
		t.Errorf("received %v, want [1 2 3]", got)
	}
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	k := startKernel(t, 2)
	q := NewWaitQueue[string]()
	got := make(chan string, 1)
	errs := make(chan error, 1)
	consumer := mustSpawn(t, k, TaskConfig{
		Name:     "consumer",
		Priority: PriorityNormal,
		Fn: func(task *Task) {
			v, err := q.Receive(task)
			errs <- err
			got <- v
		},
	})
	mustSpawn(t, k, TaskConfig{
		Name:     "producer",
		Priority: PriorityNormal,
		Fn: func(task *Task) {
			// Wait until the consumer is parked so the blocking path
			// is the one exercised, then send exactly once.
			for consumer.Status() != TaskBlocked {
				task.Yield()
			}
			if !q.Send("hello") {
				t.Error("Send() woke no parked consumer")
			}
		},
	})
	k.Wait()
	if err := <-errs; err != nil {
		t.Fatalf("Receive(): %v", err)
	}
	if v := <-got; v != "hello" {
		t.Errorf("Receive() = %q, want %q", v, "hello")
	}
}

func TestReceiveInterrupted(t *testing.T) {
	k := startKernel(t, 2)
	q := NewWaitQueue[int]()
	errs := make(chan error, 1)
	task := mustSpawn(t, k, TaskConfig{
		Name:     "consumer",
		Priority: PriorityNormal,
		Fn: func(task *Task) {
			_, err := q.Receive(task)
			errs <- err
		},
	})
	mustSpawn(t, k, TaskConfig{
		Name:     "interrupter",
		Priority: PriorityNormal,
		Fn: func(other *Task) {
			for task.Status() != TaskBlocked {
				other.Yield()
			}
			task.Interrupt()
		},
	})
	k.Wait()
	if err := <-errs; !errors.Is(err, ErrInterrupted) {
		t.Errorf("Receive() error = %v, want ErrInterrupted", err)
	}
}

func TestHighPriorityConsumerWinsRace(t *testing.T) {
	k := startKernel(t, 1)
	q := NewWaitQueue[int]()
	winner := make(chan string, 2)
	// Real-time consumers dispatch strictly by priority, making the
	// post-wakeup race deterministic.
	consumer := func(name string, prio Priority) *Task {
		return mustSpawn(t, k, TaskConfig{
			Name:     name,
			Priority: prio,
			Realtime: true,
			Fn: func(task *Task) {
				if _, err := q.Receive(task); err == nil {
					winner <- name
				}
			},
		})
	}
	low := consumer("low", PriorityLow)
	high := consumer("high", 20)
	mustSpawn(t, k, TaskConfig{
		Name:     "producer",
		Priority: PriorityNormal,
		Fn: func(task *Task) {
			for low.Status() != TaskBlocked || high.Status() != TaskBlocked {
				task.Yield()
			}
			q.Send(1)
			// The second item unblocks the loser so the test finishes.
			q.Send(2)
		},
	})
	k.Wait()
	if got := <-winner; got != "high" {
		t.Errorf("first item went to %q, want %q", got, "high")
	}
}
