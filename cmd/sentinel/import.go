package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"PriceSentinel/internal/importer"
)

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import stock recommendations from a CSV sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := a.openStore()
			if err != nil {
				return err
			}
			res, err := importer.New(s, a.log).Import(cmd.Context(), f)
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d skipped=%d\n", res.Created, res.Skipped)
			return err
		},
	}
}
