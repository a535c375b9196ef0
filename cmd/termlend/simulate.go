package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
	"github.com/spf13/cobra"

	"termlend/core/ledger"
	fp "termlend/native/fixedpoint"
	"termlend/services/simulator"
)

func simulateCommand(flags *rootFlags) *cobra.Command {
	var scenarioPath string
	var start int64
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scripted scenario against simulated prices and liquidate underwater accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := simulator.LoadScenario(scenarioPath)
			if err != nil {
				return err
			}
			rt, err := setupApp(cmd.Context(), "termlend-simulator", flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			mock := clock.NewMock()
			if start > 0 {
				mock.Set(time.Unix(start, 0))
			} else {
				mock.Set(time.Now().Truncate(time.Second))
			}
			l, err := ledger.Deploy(rt.cfg, ledger.Options{Clock: mock, Logger: rt.logger})
			if err != nil {
				return err
			}
			defer l.Close()

			runner, err := simulator.NewRunner(l, mock, sc, rt.logger)
			if err != nil {
				return err
			}
			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			rt.logger.Info("simulation finished",
				slog.Int("blocks", report.Blocks),
				slog.Int("actions", report.Actions),
				slog.Int("failed_actions", report.FailedActions),
				slog.Int("liquidations", len(report.Liquidations)))

			out := cmd.OutOrStdout()
			for _, liq := range report.Liquidations {
				fmt.Fprintf(out, "liquidated %s: repaid %s %s, seized %s %s\n",
					liq.Borrower.Hex(), liq.Repaid, liq.RepayMarket, liq.Seized, liq.SeizeMarket)
			}
			for _, id := range l.MarketIDs() {
				market, _ := l.Market(id)
				fmt.Fprintf(out, "%s total assets %s floating debt %s\n", id,
					fp.FormatUnits(report.TotalAssets[id], market.Decimals()),
					fp.FormatUnits(report.FloatingDebt[id], market.Decimals()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "scenario.yaml", "path to the scenario script")
	cmd.Flags().Int64Var(&start, "start", 0, "unix timestamp of block zero, defaults to now")
	return cmd
}
