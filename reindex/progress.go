// Copyright 2025 Poiesic Systems
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

package reindex

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// ProgressTracker logs a rebuild's progress every reportEvery records.
// Counts before Start are ignored.
type ProgressTracker struct {
	mu          sync.Mutex
	logger      *slog.Logger
	total       int
	reportEvery int
	done        int
	reported    int
	started     time.Time
}

func NewProgressTracker(logger *slog.Logger, total, reportEvery int) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressTracker{
		logger:      logger,
		total:       total,
		reportEvery: max(reportEvery, 1),
	}
}

func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = time.Now()
	p.done, p.reported = 0, 0
}

// Increment records n more processed documents.
func (p *ProgressTracker) Increment(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return
	}
	p.done = min(p.done+n, p.total)
	if p.done-p.reported >= p.reportEvery {
		p.reported = p.done
		p.log("reindex progress")
	}
}

func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started.IsZero() {
		p.log("reindex finished")
	}
}

func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// log must be called with mu held.
func (p *ProgressTracker) log(msg string) {
	elapsed := time.Since(p.started)
	attrs := []any{"done", p.done, "total", p.total, "elapsed", elapsed.Round(time.Millisecond)}
	if p.total > 0 {
		attrs = append(attrs, "percent", math.Round(float64(p.done)*1000/float64(p.total))/10)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		attrs = append(attrs, "per_second", math.Round(float64(p.done)/secs*10)/10)
	}
	p.logger.Info(msg, attrs...)
}
