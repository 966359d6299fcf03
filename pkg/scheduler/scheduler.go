// Copyright 2025 The Launcher Authors
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

// Package scheduler drives recurring tasks: a periodic scan finds due tasks,
// creates execution records and feeds them to a worker pool running the
// execution engine. At most one execution per task is in flight at any time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenthub/launcher/pkg/config"
	"github.com/agenthub/launcher/pkg/store"
)

const (
	defaultWorkers      = 4
	defaultScanInterval = 60 * time.Second
	defaultQueueSize    = 64
)

// Runner executes one execution record to completion.
type Runner interface {
	Execute(ctx context.Context, executionID string) error
}

// Scheduler owns the pending scan and the execution queue.
type Scheduler struct {
	store  *store.Store
	runner Runner
	cfg    config.SchedulerConfig
	queue  chan string
	logger *slog.Logger

	// mu serialises queue sends against the shutdown close. Chain triggers
	// call Schedule from workers that may outlive the scan loop.
	mu       sync.Mutex
	draining bool
}

func New(st *store.Store, runner Runner, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Scheduler{
		store:  st,
		runner: runner,
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueSize),
		logger: logger,
	}
}

// Run blocks until ctx is cancelled, driving the scan loop and the worker
// pool. The queue is drained before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"workers", s.cfg.Workers, "scan_interval", s.cfg.ScanInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.worker(ctx)
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.ScanInterval)
		defer ticker.Stop()

		// One scan at startup so due tasks do not wait a full interval.
		s.ScanOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.draining = true
				close(s.queue)
				s.mu.Unlock()
				return nil
			case <-ticker.C:
				s.ScanOnce(ctx)
			}
		}
	})

	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// ScanOnce runs a single pending scan: every active task whose next
// execution time has arrived gets one execution, unless one is already in
// flight.
func (s *Scheduler) ScanOnce(ctx context.Context) {
	now := time.Now().UTC()
	tasks, err := s.store.ListDueTasks(ctx, now)
	if err != nil {
		s.logger.Error("pending scan failed", "error", err)
		return
	}

	for _, task := range tasks {
		if !task.IsReady(now) {
			continue
		}
		if err := s.dispatch(ctx, task); err != nil {
			s.logger.Error("failed to dispatch due task", "task_id", task.ID, "error", err)
		}
	}
}

// Schedule creates and enqueues an execution for the task. With force the
// next-execution gate is bypassed; the task must still be active, under its
// execution cap and without an in-flight execution.
func (s *Scheduler) Schedule(ctx context.Context, taskID string, force bool) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	if force {
		if task.Status != store.TaskActive {
			return fmt.Errorf("task %s is not active (status %s)", taskID, task.Status)
		}
		if !task.UnderCap() {
			return fmt.Errorf("task %s reached its execution cap", taskID)
		}
	} else if !task.IsReady(time.Now().UTC()) {
		return fmt.Errorf("task %s is not ready", taskID)
	}

	return s.dispatch(ctx, task)
}

// Cancel marks a pending or running execution as failed with a cancellation
// message. A pending record still in the queue is skipped by the worker when
// the running claim fails.
func (s *Scheduler) Cancel(ctx context.Context, executionID string) error {
	return s.store.CancelExecution(ctx, executionID)
}

// dispatch creates the execution row first, then enqueues its id. The row
// existing before the enqueue is what serialises executions per task.
func (s *Scheduler) dispatch(ctx context.Context, task *store.AgentTask) error {
	active, err := s.store.HasActiveExecution(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to check in-flight executions: %w", err)
	}
	if active {
		s.logger.Debug("task already has an in-flight execution", "task_id", task.ID)
		return nil
	}

	exec, err := s.store.CreateExecution(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	if err := s.enqueue(ctx, exec.ID); err != nil {
		// Never leave an orphaned pending row behind on shutdown.
		if ferr := s.store.FailExecution(context.Background(), exec.ID, "Scheduler shutting down", 0); ferr != nil {
			s.logger.Error("failed to fail orphaned execution", "execution_id", exec.ID, "error", ferr)
		}
		return err
	}

	s.logger.Info("execution enqueued",
		"execution_id", exec.ID, "task_id", task.ID, "task", task.Name)
	return nil
}

// enqueue sends under the shutdown lock so a send can never race the queue
// close. Blocking here is bounded: workers keep draining until the close.
func (s *Scheduler) enqueue(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return fmt.Errorf("scheduler is shutting down")
	}
	select {
	case s.queue <- executionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for id := range s.queue {
		if err := s.runner.Execute(ctx, id); err != nil {
			s.logger.Error("execution failed", "execution_id", id, "error", err)
		}
	}
}
