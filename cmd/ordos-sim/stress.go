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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"ordos.dev/ordos/pkg/kernel"
	"ordos.dev/ordos/pkg/log"
)

// stressCmd hammers the wait queues with producer/consumer pairs to shake
// out lost wakeups.
type stressCmd struct {
	config   string
	pairs    int
	messages int
}

// Name implements subcommands.Command.
func (*stressCmd) Name() string { return "stress" }

// Synopsis implements subcommands.Command.
func (*stressCmd) Synopsis() string { return "run a producer/consumer stress workload" }

// Usage implements subcommands.Command.
func (*stressCmd) Usage() string {
	return "stress [-config <file>] [-pairs N] [-messages N]\n"
}

// SetFlags implements subcommands.Command.
func (c *stressCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "YAML scheduler configuration file")
	f.IntVar(&c.pairs, "pairs", 4, "number of producer/consumer pairs")
	f.IntVar(&c.messages, "messages", 10000, "messages per pair")
}

// Execute implements subcommands.Command.
func (c *stressCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := kernel.DefaultConfig()
	if c.config != "" {
		var err error
		if cfg, err = kernel.LoadConfig(c.config); err != nil {
			log.Warningf("%v", err)
			return subcommands.ExitUsageError
		}
	}

	k := kernel.New(cfg, kernel.NewGoPlatform())
	k.Start()
	defer k.Shutdown()

	var g errgroup.Group
	for p := 0; p < c.pairs; p++ {
		p := p
		q := kernel.NewWaitQueue[int]()
		received := make(chan int, 1)

		g.Go(func() error {
			_, err := k.Spawn(kernel.TaskConfig{
				Name:     fmt.Sprintf("producer-%d", p),
				Priority: kernel.PriorityNormal,
				Fn: func(task *kernel.Task) {
					for i := 0; i < c.messages; i++ {
						q.Send(i)
						task.SchedulePoint()
					}
				},
			})
			return err
		})
		g.Go(func() error {
			_, err := k.Spawn(kernel.TaskConfig{
				Name:     fmt.Sprintf("consumer-%d", p),
				Priority: kernel.PriorityNormal,
				Fn: func(task *kernel.Task) {
					sum := 0
					for i := 0; i < c.messages; i++ {
						v, err := q.Receive(task)
						if err != nil {
							log.Warningf("consumer-%d: %v", p, err)
							break
						}
						sum += v
					}
					received <- sum
				},
			})
			return err
		})

		want := c.messages * (c.messages - 1) / 2
		g.Go(func() error {
			if sum := <-received; sum != want {
				return fmt.Errorf("pair %d: message sum %d, want %d", p, sum, want)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warningf("stress: %v", err)
		return subcommands.ExitFailure
	}
	k.Wait()

	log.Infof("stress passed: %d pairs x %d messages", c.pairs, c.messages)
	for i, s := range k.CPUStats() {
		log.Infof("cpu%d: %d switches, avg dispatch %dns", i, s.Switches, s.AvgNs)
	}
	return subcommands.ExitSuccess
}
