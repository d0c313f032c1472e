package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTickCmd(o *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one dispatch tick for every account and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			now, err := parseAt(at, a.Location())
			if err != nil {
				return err
			}
			reports, tickErr := a.Tick(cmd.Context(), now)
			for _, r := range reports {
				if r.Account == "" {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s due=%d sent=%d failed=%d\n",
					r.Account, r.Bucket, r.Due, r.Dispatched, r.Failed)
			}
			return tickErr
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "tick as if it were this time (RFC3339 or 2006-01-02T15:04)")
	return cmd
}
