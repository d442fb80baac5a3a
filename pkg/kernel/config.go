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
	"fmt"
	"os"
	"runtime"

	"github.com/goccy/go-yaml"
)

// Config holds the tunable scheduler parameters. All durations are in
// nanoseconds, matching the clock the scheduler accounts in.
type Config struct {
	// CPUs is the number of logical processors.
	CPUs int `yaml:"cpus"`

	// BaseTimeSliceNs is the slice granted to real-time tasks.
	BaseTimeSliceNs int64 `yaml:"base_time_slice_ns"`

	// MinTimeSliceNs and MaxTimeSliceNs bound the fair slice range; the
	// actual slice scales linearly with priority between them.
	MinTimeSliceNs int64 `yaml:"min_time_slice_ns"`
	MaxTimeSliceNs int64 `yaml:"max_time_slice_ns"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	cpus := runtime.NumCPU()
	if cpus > MaxCPUs {
		cpus = MaxCPUs
	}
	return Config{
		CPUs:            cpus,
		BaseTimeSliceNs: 1_000_000, // 1ms
		MinTimeSliceNs:  100_000,   // 100us
		MaxTimeSliceNs:  6_000_000, // 6ms
	}
}

// ParseConfig overlays YAML onto the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

func (c *Config) validate() error {
	if c.CPUs < 1 || c.CPUs > MaxCPUs {
		return fmt.Errorf("cpus must be in [1, %d], got %d", MaxCPUs, c.CPUs)
	}
	if c.MinTimeSliceNs <= 0 {
		return fmt.Errorf("min_time_slice_ns must be positive, got %d", c.MinTimeSliceNs)
	}
	if c.MaxTimeSliceNs < c.MinTimeSliceNs {
		return fmt.Errorf("max_time_slice_ns %d below min_time_slice_ns %d", c.MaxTimeSliceNs, c.MinTimeSliceNs)
	}
	if c.BaseTimeSliceNs <= 0 {
		return fmt.Errorf("base_time_slice_ns must be positive, got %d", c.BaseTimeSliceNs)
	}
	return nil
}
