package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maumercado/ptc/internal/ptc/deadletter"
	"github.com/maumercado/ptc/internal/ptc/store"
)

var showAllDeadLetters bool

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List the most recent unresolved dead-letter rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.ListDeadLettersFilter{UnresolvedOnly: !showAllDeadLetters, Limit: 50}
		var rows []*store.DeadLetter
		var err error
		if localFlag {
			s, serr := openLocalStore()
			if serr != nil {
				return serr
			}
			defer s.Close()
			rows, err = s.ListDeadLetters(filter)
		} else {
			c, cerr := newClient()
			if cerr != nil {
				return cerr
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			rows, err = c.ListDeadLetters(ctx, filter.UnresolvedOnly)
		}
		if err != nil {
			return err
		}

		if jsonFlag {
			return printJSON(rows)
		}
		printHeading(fmt.Sprintf("%d dead letter(s)", len(rows)))
		for _, dl := range rows {
			fmt.Printf("%-24s type=%-12s sender=%-16s recipient=%-16s retries=%d error=%q\n",
				dl.ID, dl.Type, dl.Sender, dl.Recipient, dl.RetryCount, dl.Error)
		}
		return nil
	},
}

var (
	retryAll    bool
	retryDryRun bool
	retryFilter string
)

var retryCmd = &cobra.Command{
	Use:   "retry [dl-id]",
	Short: "Resurface dead-lettered messages",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case len(args) == 1 && !retryAll && retryFilter == "":
			return retrySingle(args[0])
		case retryAll || retryFilter != "":
			if !localFlag {
				return fmt.Errorf("retry --all/--filter requires --local (batch retry mutates the store directly)")
			}
			return retryBatch()
		default:
			return fmt.Errorf("specify a dead-letter id, --all, or --filter")
		}
	},
}

func retrySingle(id string) error {
	if localFlag {
		s, err := openLocalStore()
		if err != nil {
			return err
		}
		defer s.Close()
		mgr := deadletter.New(s)
		if retryDryRun {
			if _, err := mgr.Get(id); err != nil {
				return err
			}
			okColor.Printf("would retry %s (dry run)\n", id)
			return nil
		}
		msg, err := mgr.Retry(id)
		if err != nil {
			return err
		}
		okColor.Printf("retried %s as new message %s\n", id, msg.ID)
		return nil
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	if retryDryRun {
		return fmt.Errorf("--dry-run is only supported with --local")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.RetryDeadLetter(ctx, id); err != nil {
		return err
	}
	okColor.Printf("retried %s\n", id)
	return nil
}

func retryBatch() error {
	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()
	mgr := deadletter.New(s)

	rows, err := mgr.List(store.ListDeadLettersFilter{UnresolvedOnly: true})
	if err != nil {
		return err
	}
	rows = filterDeadLetters(rows, retryFilter)

	if retryDryRun {
		printHeading(fmt.Sprintf("would retry %d dead letter(s) (dry run)", len(rows)))
		for _, dl := range rows {
			fmt.Println(" ", dl.ID)
		}
		return nil
	}

	var succeeded, failed int
	for _, dl := range rows {
		if _, err := mgr.Retry(dl.ID); err != nil {
			failed++
			continue
		}
		succeeded++
	}
	okColor.Printf("retried %d dead letter(s), %d failed\n", succeeded, failed)
	return nil
}

// filterDeadLetters applies a "key=value" filter (spec §6's retry --filter),
// matching against type or sender.
func filterDeadLetters(rows []*store.DeadLetter, filter string) []*store.DeadLetter {
	if filter == "" {
		return rows
	}
	parts := strings.SplitN(filter, "=", 2)
	if len(parts) != 2 {
		return rows
	}
	key, value := parts[0], parts[1]

	var out []*store.DeadLetter
	for _, dl := range rows {
		switch key {
		case "type":
			if dl.Type == value {
				out = append(out, dl)
			}
		case "sender":
			if dl.Sender == value {
				out = append(out, dl)
			}
		}
	}
	return out
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <dl-id> [retried|skipped|escalated]",
	Short: "Mark a dead letter resolved without replaying it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		resolution := store.ResolutionSkipped
		if len(args) == 2 {
			switch args[1] {
			case "retried":
				resolution = store.ResolutionRetried
			case "skipped":
				resolution = store.ResolutionSkipped
			case "escalated":
				resolution = store.ResolutionEscalated
			default:
				return fmt.Errorf("unknown resolution %q", args[1])
			}
		}

		if localFlag {
			s, err := openLocalStore()
			if err != nil {
				return err
			}
			defer s.Close()
			ok, err := s.ResolveDeadLetter(id, resolution)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("dead letter %s already resolved or not found", id)
			}
			okColor.Printf("resolved %s as %s\n", id, resolution)
			return nil
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.ResolveDeadLetter(ctx, id, string(resolution)); err != nil {
			return err
		}
		okColor.Printf("resolved %s as %s\n", id, resolution)
		return nil
	},
}

func init() {
	deadLettersCmd.Flags().BoolVar(&showAllDeadLetters, "all", false, "include resolved dead letters")
	retryCmd.Flags().BoolVar(&retryAll, "all", false, "retry every unresolved dead letter")
	retryCmd.Flags().BoolVar(&retryDryRun, "dry-run", false, "report what would be retried without mutating state")
	retryCmd.Flags().StringVar(&retryFilter, "filter", "", "retry only dead letters matching key=value (type or sender)")
}
