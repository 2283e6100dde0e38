package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	var withItems bool

	cmd := &cobra.Command{
		Use:   "categories <work-package>",
		Short: "List the categories offered for a work package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadReference(cmd.Context())
			if err != nil {
				return err
			}

			options := data.Index.CategoriesForWorkPackage(args[0])
			out := cmd.OutOrStdout()
			if len(options) == 0 {
				fmt.Fprintf(out, "No categories for work package %q.\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tTAX")
			for _, c := range options {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Label, c.TaxRate.String())
				if !withItems {
					continue
				}
				for _, it := range data.Index.ItemsForCategory(c.ID) {
					fmt.Fprintf(w, "  %s\t%s\t%s\n", it.ID, it.Label, it.Unit)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&withItems, "items", false, "also list the items of each category")
	return cmd
}
