package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/x1thexxx-lgtm/hostinv/pkg/config"
	"github.com/x1thexxx-lgtm/hostinv/pkg/logging"
	"github.com/x1thexxx-lgtm/hostinv/pkg/scheduler"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var output string
	var once bool
	var listRuns bool
	var lastHost string

	flagSet := pflag.NewFlagSet("hostinv", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "servers.yaml", "path to config file")
	flagSet.StringVarP(&output, "output", "o", "", "spreadsheet path (overrides output in the config)")
	flagSet.BoolVar(&once, "once", false, "run a single inventory even when the scheduler is enabled")
	flagSet.BoolVar(&listRuns, "list-runs", false, "print the stored runs and their failed hosts, then exit")
	flagSet.StringVar(&lastHost, "last", "", "print the latest stored inventory of a host, then exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if output != "" {
		cfg.Output = output
	}
	logger, err := logging.New(cfg.Logging.Path, logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	logger.SetFormat(cfg.Logging.Format)
	for _, ip := range cfg.InvalidIPs() {
		logger.Warnf("ip_servers entry %q is not a valid IP address", ip)
	}
	if listRuns || lastHost != "" {
		return query(cfg, logger, listRuns, lastHost)
	}
	maybePromptGLPIPassword(cfg)

	collector, err := newCollector(cfg, logger)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger, collector, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return err
	}
	if cfg.Scheduler.Enabled && !once {
		scheduler.New(cfg.Scheduler, a, logger).Start(ctx)
	}
	return nil
}

// query answers --list-runs and --last from the snapshot store without
// contacting any host.
func query(cfg *config.Config, logger *logging.Logger, listRuns bool, lastHost string) error {
	if cfg.Store.Path == "" {
		return errNoStore
	}
	a, err := newApp(cfg, logger, nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if listRuns {
		if err := a.ListRuns(ctx, 0); err != nil {
			return err
		}
	}
	if lastHost != "" {
		return a.Last(ctx, lastHost)
	}
	return nil
}

func maybePromptGLPIPassword(cfg *config.Config) {
	if cfg == nil || cfg.GLPI.BaseURL == "" || cfg.GLPI.OAuth == nil {
		return
	}
	if cfg.GLPI.OAuth.Password != "" || cfg.GLPI.OAuth.Username == "" {
		return
	}
	fmt.Printf("Enter GLPI password for %s: ", cfg.GLPI.OAuth.Username)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "read GLPI password: %v\n", err)
		return
	}
	cfg.GLPI.OAuth.Password = strings.TrimSpace(line)
}
