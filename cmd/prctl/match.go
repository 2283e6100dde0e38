package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/procura/api/internal/matcher"
	"github.com/spf13/cobra"
)

func matchCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "match <text>",
		Short: "Find catalog items resembling a typed name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadReference(cmd.Context())
			if err != nil {
				return err
			}

			m := matcher.New(data.MatcherItems())
			text := strings.Join(args, " ")
			var matches []matcher.RankedMatch
			if category != "" {
				matches = m.SearchCategory(text, category)
			} else {
				matches = m.Search(text)
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "No catalog items resemble %q.\n", text)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MATCH\tID\tNAME\tUNIT\tCATEGORY")
			for _, r := range matches {
				fmt.Fprintf(w, "%d%%\t%s\t%s\t%s\t%s\n",
					r.MatchPercentage, r.Item.ID, r.Item.Name, r.Item.Unit, r.Item.Category)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only consider items in this category")
	return cmd
}
