package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"termlend/config"
)

func configCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the ledger configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration, writing defaults when the file is missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config %s ok: %d markets\n", flags.configPath, len(cfg.Markets))
			for _, m := range cfg.Markets {
				fmt.Fprintf(out, "  %s decimals=%d adjust=%s feed=%s paused=%t\n", m.ID, m.Decimals, m.AdjustFactor, m.PriceFeed, m.Paused)
			}
			return nil
		},
	})
	return cmd
}
