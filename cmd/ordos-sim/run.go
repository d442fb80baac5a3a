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
	"sync/atomic"

	"github.com/google/subcommands"

	"ordos.dev/ordos/pkg/kernel"
	"ordos.dev/ordos/pkg/log"
	"ordos.dev/ordos/pkg/sync/locking"
)

var runLockClass = locking.NewClass("sim.counter", locking.L2)

// runCmd runs a fixed mixed workload and reports scheduler statistics.
type runCmd struct {
	config  string
	workers int
	rt      int
	yields  int
}

// Name implements subcommands.Command.
func (*runCmd) Name() string { return "run" }

// Synopsis implements subcommands.Command.
func (*runCmd) Synopsis() string { return "run a mixed real-time/fair workload" }

// Usage implements subcommands.Command.
func (*runCmd) Usage() string {
	return "run [-config <file>] [-workers N] [-rt N] [-yields N]\n"
}

// SetFlags implements subcommands.Command.
func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "YAML scheduler configuration file")
	f.IntVar(&c.workers, "workers", 8, "number of fair worker tasks")
	f.IntVar(&c.rt, "rt", 2, "number of real-time tasks")
	f.IntVar(&c.yields, "yields", 1000, "yields per task")
}

// Execute implements subcommands.Command.
func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	m := kernel.NewMutex(runLockClass)
	counter := 0
	var completed atomic.Int64

	body := func(task *kernel.Task) {
		for i := 0; i < c.yields; i++ {
			m.Lock(task)
			counter++
			m.Unlock(task)
			task.SchedulePoint()
		}
		completed.Add(1)
	}
	for i := 0; i < c.workers; i++ {
		if _, err := k.Spawn(kernel.TaskConfig{
			Name:     fmt.Sprintf("worker-%d", i),
			Priority: kernel.PriorityNormal,
			Fn:       body,
		}); err != nil {
			log.Warningf("spawn: %v", err)
			return subcommands.ExitFailure
		}
	}
	for i := 0; i < c.rt; i++ {
		if _, err := k.Spawn(kernel.TaskConfig{
			Name:     fmt.Sprintf("rt-%d", i),
			Priority: kernel.Priority(i),
			Realtime: true,
			Fn:       body,
		}); err != nil {
			log.Warningf("spawn: %v", err)
			return subcommands.ExitFailure
		}
	}

	k.Wait()

	total := (c.workers + c.rt) * c.yields
	if counter != total {
		log.Warningf("counter = %d, want %d: lock exclusion violated", counter, total)
		return subcommands.ExitFailure
	}
	log.Infof("%d tasks completed, counter = %d", completed.Load(), counter)
	for i, s := range k.CPUStats() {
		log.Infof("cpu%d: %d switches, min %dns avg %dns max %dns",
			i, s.Switches, s.MinNs, s.AvgNs, s.MaxNs)
	}
	return subcommands.ExitSuccess
}
