package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"carevisit/internal/audit"
	"carevisit/internal/model"
	"carevisit/internal/slots"
)

func newExpandCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		months int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Store the holds generated by recurring visit rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("months") {
				months = a.cfg.Horizon.MonthsAhead
			}
			out := cmd.OutOrStdout()
			rules := a.Facilities().Rules()

			if dryRun {
				keeps, err := slots.ExpandAll(rules, months, a.svc.Today())
				if err != nil {
					return err
				}
				for _, k := range keeps {
					fmt.Fprintf(out, "%s\t%s\n", k.Date, k.Facility)
				}
				return nil
			}

			if err := a.applyFacilities(cmd.Context(), a.Facilities()); err != nil {
				return err
			}
			res, err := a.svc.SyncSystemKeeps(cmd.Context(), rules, months)
			if err != nil {
				return err
			}
			for _, k := range res.Added {
				fmt.Fprintf(out, "+ %s\t%s\n", k.Date, k.Facility)
			}
			for _, k := range res.Removed {
				fmt.Fprintf(out, "- %s\t%s\n", k.Date, k.Facility)
			}
			fmt.Fprintf(out, "%d added, %d removed, %d expired, %d skipped\n", len(res.Added), len(res.Removed), len(res.Expired), res.Skipped)
			return nil
		},
	}

	cmd.Flags().IntVar(&months, "months", 3, "months ahead of the current month to expand")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print candidate dates without storing them")
	return cmd
}

func newFinalizeCommand(rootOpts *rootOptions) *cobra.Command {
	var facility string

	cmd := &cobra.Command{
		Use:   "finalize <YYYY-MM>",
		Short: "Close a month: cancel unserved residents and lock the month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := model.ParseMonth(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if facility != "" {
				n, err := a.svc.FinalizeMonth(cmd.Context(), facility, month)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s: %d cancelled\n", facility, month, n)
				return nil
			}

			res, err := a.newAudit(true).CloseMonth(cmd.Context(), month)
			for id, n := range res.Cancelled {
				fmt.Fprintf(out, "%s %s: %d cancelled\n", id, month, n)
			}
			if res.Filename != "" {
				fmt.Fprintf(out, "report: %s\n", res.Filename)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&facility, "facility", "f", "", "finalize a single facility without exporting")
	return cmd
}

func newExportCommand(rootOpts *rootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <YYYY-MM>",
		Short: "Write the month's visit workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := model.ParseMonth(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if outPath == "" {
				outPath = audit.GenerateFilename(month)
			}
			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			snap, err := a.svc.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := a.newAudit(false).WriteWorkbook(f, snap, month); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default carevisit_YYYY-MM.xlsx)")
	return cmd
}
