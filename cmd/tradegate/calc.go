package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/console"
	"github.com/Mindburn-Labs/tradegate/pkg/form"
	"github.com/Mindburn-Labs/tradegate/pkg/nav"
	"github.com/Mindburn-Labs/tradegate/pkg/reveal"
	"github.com/Mindburn-Labs/tradegate/pkg/store"
	"github.com/Mindburn-Labs/tradegate/pkg/workflow"
)

var errFormInvalid = errors.New("calculation not sent: fix the fields above")

type calcFlags struct {
	exporter  string
	importer  string
	category  string
	value     string
	condition string
}

// edits resolves the flags the user set into raw form values.
func (f calcFlags) edits(cmd *cobra.Command) (map[form.Field]string, error) {
	out := make(map[form.Field]string)
	if cmd.Flags().Changed("exporter") {
		c, err := lookupCountry(f.exporter)
		if err != nil {
			return nil, err
		}
		out[form.Exporter] = itoa(c)
	}
	if cmd.Flags().Changed("importer") {
		c, err := lookupCountry(f.importer)
		if err != nil {
			return nil, err
		}
		out[form.Importer] = itoa(c)
	}
	if cmd.Flags().Changed("category") {
		c, err := lookupCategory(f.category)
		if err != nil {
			return nil, err
		}
		out[form.Category] = itoa(c)
	}
	if cmd.Flags().Changed("condition") {
		c, err := lookupCondition(f.condition)
		if err != nil {
			return nil, err
		}
		out[form.Condition] = itoa(c)
	}
	if cmd.Flags().Changed("value") {
		out[form.DeclaredValue] = f.value
	}
	return out, nil
}

func (c *cli) calcCmd() *cobra.Command {
	var f calcFlags
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate import duty for a shipment",
		Long: "Fill in the calculator and submit it. The exporter defaults to the saved\n" +
			"home country. Countries, categories and conditions are accepted by name or id.",
		Example: "  tradegate calc --importer USA --category Steel --value 10000 --condition penalty",
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := f.edits(cmd)
			if err != nil {
				return err
			}
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			mnt, ok := l.guard.MountCalculator(ctx, &nav.Recorder{})
			if !ok {
				return errSignedOut
			}
			if err := c.openHistory(l); err != nil {
				return err
			}
			calc, err := c.newCalculator(c.cfg, c.logger, nil)
			if err != nil {
				return err
			}

			sched := &reveal.ManualScheduler{}
			m := workflow.New(workflow.Options{
				Calculator: calc,
				Scheduler:  sched,
				OnResult:   l.recordHook(mnt.Session.User.ID),
				Logger:     c.logger,
			})
			m.Prefill(mnt.HomeCountry)
			for _, field := range form.Fields() {
				if raw, ok := edits[field]; ok {
					if err := m.Edit(field, raw); err != nil {
						return err
					}
				}
			}

			err = m.Submit(ctx)
			snap := m.Snapshot()
			switch {
			case errors.Is(err, workflow.ErrInvalid):
				for _, field := range form.Fields() {
					if snap.Errors.Flagged(field) {
						_, _ = fmt.Fprintf(c.stderr, "  %s: %s\n", field, snap.Errors.Message(field))
					}
				}
				return errFormInvalid
			case err != nil:
				return errors.New(snap.Error)
			}

			sched.Frame()
			snap = m.Snapshot()
			if snap.Result == nil {
				return errors.New("no result")
			}
			printResult(c.stdout, snap.Form, *snap.Result)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.exporter, "exporter", "", "exporter country (default: home country)")
	cmd.Flags().StringVar(&f.importer, "importer", "", "importer country")
	cmd.Flags().StringVar(&f.category, "category", "", "goods category")
	cmd.Flags().StringVar(&f.value, "value", "", "declared value in USD, a positive integer")
	cmd.Flags().StringVar(&f.condition, "condition", "", "trade condition: normal, preferential or penalty")
	return cmd
}

func printResult(w io.Writer, f form.State, res calculator.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Exporter:\t%s\n", f.Exporter.Label())
	_, _ = fmt.Fprintf(tw, "Importer:\t%s\n", f.Importer.Label())
	_, _ = fmt.Fprintf(tw, "Category:\t%s\n", f.Category)
	_, _ = fmt.Fprintf(tw, "Declared value:\t%s\n", console.USD(float64(declared(f))))
	_, _ = fmt.Fprintf(tw, "Condition:\t%s\n", f.Condition.Label())
	_, _ = fmt.Fprintf(tw, "Base tariff:\t%s\n", res.BaseTariff)
	label := "Standard"
	if res.AIAssisted {
		label = "AI-assisted"
	}
	_, _ = fmt.Fprintf(tw, "Effective tariff:\t%s (%s)\n", res.EffectiveTariff, label)
	_, _ = fmt.Fprintf(tw, "Duty payable:\t%s\n", console.USD(res.DutyPayable))
	_ = tw.Flush()
}

func declared(f form.State) int64 {
	v, _ := f.DeclaredAmount()
	return v
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent calculations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, l, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			sess, ok := l.guard.Require(ctx, &nav.Recorder{})
			if !ok {
				return errSignedOut
			}
			if err := c.openHistory(l); err != nil {
				return err
			}
			entries, err := l.history.Recent(ctx, sess.User.ID, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(c.stdout, "No calculations yet.")
				return nil
			}
			printHistory(c.stdout, entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultLimit, "number of entries")
	return cmd
}

func printHistory(w io.Writer, entries []store.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "WHEN\tROUTE\tCATEGORY\tVALUE\tTARIFF\tDUTY")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s → %s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			catalog.CountryID(e.Request.Exporter),
			catalog.CountryID(e.Request.Importer),
			catalog.CategoryID(e.Request.Category),
			console.USD(float64(e.Request.DeclaredValue)),
			e.Result.EffectiveTariff,
			console.USD(e.Result.DutyPayable),
		)
	}
	_ = tw.Flush()
}
