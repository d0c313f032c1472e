package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/command"
	"schedbot/internal/schedule"
)

func requireAccount(a *app.App, id string) error {
	if _, ok := a.Account(id); !ok {
		return fmt.Errorf("unknown account %q", id)
	}
	return nil
}

func newAddCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <account> <when> <message...>",
		Short: "Reserve a message",
		Long: `Reserve a message for the minute <when>.

<when> is 20240115-0930, 2024-01-15T09:30, "2024-01-15 09:30" or +30m.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := requireAccount(a, args[0]); err != nil {
				return err
			}

			now := time.Now()
			at, err := command.ParseWhen(args[1], now, a.Location())
			if err != nil {
				return err
			}
			if err := command.NotPast(at, now); err != nil {
				return err
			}
			at = at.In(a.Location())
			id, err := a.Store().Create(cmd.Context(), args[0], at, strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reserved #%d for %s\n", id, schedule.BucketKey(at))
			return nil
		},
	}
}

func newCancelCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <account> <when> [id]",
		Short: "Remove one reservation, or every reservation in a minute",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := requireAccount(a, args[0]); err != nil {
				return err
			}

			at, err := command.ParseWhen(args[1], time.Now(), a.Location())
			if err != nil {
				return err
			}
			at = at.In(a.Location())
			key := schedule.BucketKey(at)

			var removed bool
			if len(args) == 3 {
				n, err := strconv.Atoi(strings.TrimPrefix(args[2], "#"))
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid reservation id %q", args[2])
				}
				removed, err = a.Store().Delete(cmd.Context(), args[0], at, schedule.ReservationID(n))
				if err != nil {
					return err
				}
				key = fmt.Sprintf("#%d in %s", n, key)
			} else {
				removed, err = a.Store().DeleteBucket(cmd.Context(), args[0], at)
				if err != nil {
					return err
				}
			}
			if removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", key)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to remove at", key)
			}
			return nil
		},
	}
}

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <account>",
		Short: "List pending reservations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := requireAccount(a, args[0]); err != nil {
				return err
			}
			list, err := a.Store().List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), command.FormatList(list))
			return nil
		},
	}
}
