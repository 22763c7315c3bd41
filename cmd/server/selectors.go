package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/browser/snapshot"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors <page.html>",
	Short: "Check the composer locators against a saved LinkedIn page",
	Args:  cobra.ExactArgs(1),
	RunE:  runSelectors,
}

func runSelectors(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	page, err := snapshot.New(f)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATOR\tMATCH\tSTRATEGY")

	missing := 0
	for _, l := range automation.Locators() {
		n, how, err := l.FindWith(context.Background(), page)
		switch {
		case err != nil:
			fmt.Fprintf(w, "%s\terror: %v\t\n", l.Name, err)
			missing++
		case n == nil:
			fmt.Fprintf(w, "%s\t-\t\n", l.Name)
			missing++
		default:
			fmt.Fprintf(w, "%s\t<%s> %q\t%s\n", l.Name, n.Tag, n.Label(), how)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d locators unmatched\n", missing, len(automation.Locators()))
	return nil
}
