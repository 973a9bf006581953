package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quicktask/client"
	"quicktask/config"
	"quicktask/state"
)

var Version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is built once per invocation, after flags are parsed.
type app struct {
	cfg       config.ClientConfig
	api       *client.Client
	analytics *client.Analytics
	store     *state.Store
	out       io.Writer
	asJSON    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	var verbose bool

	root := &cobra.Command{
		Use:           "quicktask",
		Short:         "Manage your QuickTask tasks from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				return errors.New("QUICKTASK_TOKEN is not set")
			}
			logger := log.New()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(log.WarnLevel)
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
			a.cfg = cfg
			a.api = client.New(cfg.APIURL, cfg.Token, cfg.Timeout)
			a.analytics = client.NewAnalytics(cfg.AnalyticsURL, cfg.Timeout)
			a.store = state.New(a.api, logger)
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "output as JSON")

	root.AddCommand(
		a.listCmd(),
		a.getCmd(),
		a.addCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.statsCmd(),
	)
	return root
}

func (a *app) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
