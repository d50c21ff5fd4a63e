package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/gartstein/ymm/internal/pkg/utils"
	"github.com/gartstein/ymm/internal/registry/controller"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/spf13/cobra"
)

func newYearCmd(a *app) *cobra.Command {
	year := &cobra.Command{
		Use:   "year",
		Short: "Lock or unlock a registry year",
	}

	setLock := func(locked bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			y, err := parseYear(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			lock, err := svc.SetYearLock(cmd.Context(), a.actor(), y, locked)
			if err != nil {
				return err
			}
			state := "unlocked"
			if lock.IsLocked {
				state = "locked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", lock.Year, state)
			return nil
		}
	}

	year.AddCommand(
		&cobra.Command{
			Use:   "lock <year>",
			Short: "Lock a year against every change",
			Args:  cobra.ExactArgs(1),
			RunE:  setLock(true),
		},
		&cobra.Command{
			Use:   "unlock <year>",
			Short: "Unlock a year",
			Args:  cobra.ExactArgs(1),
			RunE:  setLock(false),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List year locks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				locks, err := svc.ListYearLocks(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "YEAR\tLOCKED\tBY")
				for _, l := range locks {
					fmt.Fprintf(w, "%d\t%t\t%s\n", l.Year, l.IsLocked, utils.Deref(l.LockedBy))
				}
				return w.Flush()
			},
		},
	)
	return year
}

func newCountersCmd(a *app) *cobra.Command {
	counters := &cobra.Command{
		Use:   "counters",
		Short: "Inspect and adjust numbering counters",
	}

	var listYear int
	list := &cobra.Command{
		Use:   "list",
		Short: "Print every counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			snap, err := svc.ListCounters(cmd.Context(), listYear)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tSCOPE\tYEAR\tLAST")
			fmt.Fprintf(w, "%s\t-\t-\t%d\n", controller.CounterReportGlobal, snap.Global.LastSerial)
			for _, c := range snap.Years {
				fmt.Fprintf(w, "%s\t-\t%d\t%d\n", controller.CounterReportYear, c.Year, c.LastSerial)
			}
			for _, c := range snap.Documents {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", controller.CounterDocument, c.DocType, c.Year, c.LastSerial)
			}
			for _, c := range snap.Legacy {
				fmt.Fprintf(w, "legacy\t%s\t-\t%d\n", c.ReportType, c.LastSerial)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&listYear, "year", 0, "only show per-year counters of this year")

	var adj controller.CounterAdjustment
	var kind, docType string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set a counter to an exact value",
		Example: `  ymmctl counters set --kind document --doc-type GLE --year 2025 --value 140
  ymmctl counters set --kind report_global --year 2026 --value 1200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			adj.Kind = controller.CounterKind(kind)
			adj.DocType = models.DocType(docType)
			svc, err := a.service()
			if err != nil {
				return err
			}
			done, err := svc.AdjustCounter(cmd.Context(), a.actor(), adj)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set to %d\n", describeCounter(done), done.LastSerial)
			return nil
		},
	}
	set.Flags().StringVar(&kind, "kind", "", "document, report_year or report_global")
	set.Flags().StringVar(&docType, "doc-type", "", "document type for document counters")
	set.Flags().IntVar(&adj.Year, "year", 0, "counter year")
	set.Flags().IntVar(&adj.LastSerial, "value", 0, "new last serial")
	_ = set.MarkFlagRequired("kind")
	_ = set.MarkFlagRequired("value")

	counters.AddCommand(list, set)
	return counters
}

func describeCounter(adj *controller.CounterAdjustment) string {
	switch adj.Kind {
	case controller.CounterDocument:
		return fmt.Sprintf("%s %s/%d", adj.Kind, adj.DocType, adj.Year)
	case controller.CounterReportYear:
		return fmt.Sprintf("%s %d", adj.Kind, adj.Year)
	}
	return string(adj.Kind)
}

// errVerifyFailed makes verify exit non-zero without repeating the report.
var errVerifyFailed = errors.New("numbering issues found")

func newVerifyCmd(a *app) *cobra.Command {
	var year int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every numbering sequence is gapless and its counter is not behind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			result, err := svc.VerifySequences(cmd.Context(), year)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				for _, issue := range result.Issues {
					fmt.Fprintf(out, "%-15s %-25s %s\n", issue.Kind, issue.Scope, issue.Detail)
				}
				fmt.Fprintf(out, "%d scopes checked, %d issues\n", result.Scopes, len(result.Issues))
			}
			if !result.OK {
				return errVerifyFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "only check this year")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newEventsCmd(a *app) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Work with the registry event stream",
	}

	var group string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print registry events as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(a.cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("no Kafka brokers configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return tailEvents(ctx, a, group, json.NewEncoder(cmd.OutOrStdout()))
		},
	}
	tail.Flags().StringVar(&group, "group", "", "consumer group; empty follows from the latest offset without committing")

	eventsCmd.AddCommand(tail)
	return eventsCmd
}

func tailEvents(ctx context.Context, a *app, group string, enc *json.Encoder) error {
	consumer := events.NewConsumer(a.cfg.KafkaBrokers, group, a.cfg.Topic, a.logger)
	defer consumer.Close()

	consumer.RegisterHandler(func(_ context.Context, ev events.Event) error {
		return enc.Encode(ev)
	})
	consumer.Start(ctx)
	<-ctx.Done()
	consumer.Wait()
	return nil
}
