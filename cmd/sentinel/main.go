package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "PriceSentinel - live price tracking for stock recommendations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", cfgPath, "path to the YAML config file")

	root.AddCommand(serveCmd(a))
	root.AddCommand(refreshCmd(a))
	root.AddCommand(promoteCmd(a))
	root.AddCommand(statsCmd(a))
	root.AddCommand(lookupCmd(a))
	root.AddCommand(importCmd(a))

	return root
}
