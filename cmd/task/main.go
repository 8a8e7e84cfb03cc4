package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mightora/playwright-powerplatform/internal/config"
	"github.com/mightora/playwright-powerplatform/internal/logger"
	"github.com/mightora/playwright-powerplatform/internal/task"
	"github.com/mightora/playwright-powerplatform/internal/version"
	"github.com/mightora/playwright-powerplatform/pkg/bootstrap"
	"github.com/mightora/playwright-powerplatform/pkg/cmdexec"
	"github.com/mightora/playwright-powerplatform/pkg/runner"
)

func main() {
	ctx := context.Background()

	cfg := config.New()
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("playwright-powerplatform %s starting", version.GetVersion())

	exec := cmdexec.NewExecRunner()
	boot := bootstrap.New(exec, cfg.WorkDir)
	driver := runner.NewDriver(exec, boot.FrameworkDir())

	orch := task.New(cfg, boot, driver, task.Connect)
	os.Exit(orch.Run(ctx))
}
