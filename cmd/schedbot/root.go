package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/transport/console"
	logx "schedbot/pkg/logx"
)

type rootOptions struct {
	configPath string
}

// openApp builds the app for one-shot commands; console transport output
// goes to the command's stdout.
func (o *rootOptions) openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	opts = append([]app.Option{app.WithConsoleOutput(cmd.OutOrStdout())}, opts...)
	return app.New(o.configPath, opts...)
}

// openStore is openApp for commands that only touch stored reservations.
// It never builds the configured transport, so no network is needed.
func (o *rootOptions) openStore(cmd *cobra.Command) (*app.App, error) {
	return o.openApp(cmd, app.WithAdapter(console.New(io.Discard, logx.Nop())))
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "schedbot",
		Short: "Minute-bucketed message reservations delivered to chat accounts",
		Long: `schedbot stores messages reserved for a future minute and posts each one
to its account's chat when that minute arrives. Failed sends stay reserved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "./config.yaml", "path to config (json or yaml)")

	root.AddCommand(
		newRunCmd(o),
		newAddCmd(o),
		newCancelCmd(o),
		newListCmd(o),
		newTickCmd(o),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// parseAt reads an --at flag value; empty means now.
func parseAt(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Now().In(loc), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "20060102-1504"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --at %q", raw)
}
