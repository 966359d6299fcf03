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

// Command launcher runs the agent task orchestration core.
//
// Usage:
//
//	launcher serve
//	launcher run --task <task-id>
//	launcher cancel --execution <execution-id>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/agenthub/launcher/pkg/config"
	"github.com/agenthub/launcher/pkg/executor"
	"github.com/agenthub/launcher/pkg/fetch"
	"github.com/agenthub/launcher/pkg/logger"
	"github.com/agenthub/launcher/pkg/remote"
	"github.com/agenthub/launcher/pkg/scheduler"
	"github.com/agenthub/launcher/pkg/store"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Run the scheduler and worker pool."`
	Run     RunCmd     `cmd:"" help:"Force-execute a task once and wait for it."`
	Cancel  CancelCmd  `cmd:"" help:"Cancel a pending or running execution."`

	EnvFile   string `name:"env-file" help:"Path to a .env file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFormat string `help:"Log format (text or json)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(_ *CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("launcher version %s\n", version)
	return nil
}

// runtimeParts is everything a command needs to operate against the core.
type runtimeParts struct {
	cfg       *config.Config
	store     *store.Store
	engine    *executor.Engine
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func buildRuntime(ctx context.Context, cli *CLI) (*runtimeParts, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.LogFormat = cli.LogFormat
	}

	log := logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, store.Options{
		SecretKey:     cfg.SecretKey,
		RemoteEnabled: cfg.Remote.Enabled,
		Logger:        log,
		MaxConns:      cfg.Database.MaxConns,
		MaxIdle:       cfg.Database.MaxIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var objects fetch.ObjectStore
	if cfg.Fetch.S3Bucket != "" {
		s3, err := fetch.NewS3Downloader(ctx, cfg.Remote.Region, cfg.Remote.AccessKeyID, cfg.Remote.SecretAccessKey)
		if err != nil {
			log.Warn("S3 downloader unavailable, bucket URLs fall back to HTTP", "error", err)
		} else {
			objects = s3
		}
	}
	fetcher := fetch.New(cfg.Fetch, st, objects, log)

	var invoker *remote.Invoker
	if cfg.Remote.Enabled {
		invoker, err = remote.NewInvoker(ctx, cfg.Remote, log)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize remote execution: %w", err)
		}
	}

	engine := executor.New(st, fetcher, invoker, log)
	sched := scheduler.New(st, engine, cfg.Scheduler, log)
	engine.SetScheduler(sched)

	return &runtimeParts{
		cfg:       cfg,
		store:     st,
		engine:    engine,
		scheduler: sched,
		logger:    log,
	}, nil
}

// ServeCmd runs the scheduler until interrupted.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	parts, err := buildRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer parts.store.Close()

	return parts.scheduler.Run(ctx)
}

// RunCmd force-executes one task synchronously, bypassing the schedule gate.
type RunCmd struct {
	Task string `help:"Task id to execute." required:""`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()
	parts, err := buildRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer parts.store.Close()

	task, err := parts.store.GetTask(ctx, c.Task)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if task.Status != store.TaskActive {
		return fmt.Errorf("task %s is not active (status %s)", task.ID, task.Status)
	}
	if active, err := parts.store.HasActiveExecution(ctx, task.ID); err != nil {
		return err
	} else if active {
		return fmt.Errorf("task %s already has an in-flight execution", task.ID)
	}

	exec, err := parts.store.CreateExecution(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	if err := parts.engine.Execute(ctx, exec.ID); err != nil {
		return err
	}

	done, err := parts.store.GetExecution(ctx, exec.ID)
	if err != nil {
		return err
	}
	if result, ok := done.Result(); ok {
		fmt.Println(result)
	}
	return nil
}

// CancelCmd cancels an in-flight execution.
type CancelCmd struct {
	Execution string `help:"Execution id to cancel." required:""`
}

func (c *CancelCmd) Run(cli *CLI) error {
	ctx := context.Background()
	parts, err := buildRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer parts.store.Close()

	if err := parts.scheduler.Cancel(ctx, c.Execution); err != nil {
		return fmt.Errorf("failed to cancel execution: %w", err)
	}
	fmt.Printf("execution %s cancelled\n", c.Execution)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("launcher"),
		kong.Description("Agent task orchestration core"),
		kong.UsageOnError(),
	)

	if err := config.LoadDotEnv(cli.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
