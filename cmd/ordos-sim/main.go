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

// Binary ordos-sim exercises the scheduler with synthetic workloads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"ordos.dev/ordos/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging")
	logFormat = flag.String("log-format", "plain", "log format: plain, json, or logrus")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(runCmd), "")
	subcommands.Register(new(stressCmd), "")

	flag.Parse()

	if *debug {
		log.SetLevel(log.Debug)
	}
	switch *logFormat {
	case "plain":
	case "json":
		log.SetTarget(log.JSONEmitter{Writer: &log.Writer{Next: os.Stderr}})
	case "logrus":
		log.SetTarget(log.LogrusEmitter{Logger: logrus.StandardLogger()})
	default:
		fmt.Fprintf(os.Stderr, "invalid log format %q\n", *logFormat)
		os.Exit(1)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
