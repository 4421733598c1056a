package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/config"
)

func newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute a bill from a JSON request on stdin or --file",
		Long: `Reads a bill request (lineItems, membership, pointsToRedeem,
customerPointsBalance, taxConfig) and prints the computed bill as JSON.
Loyalty rules come from LOYALTY_POINT_VALUE and LOYALTY_BASE_POINTS_RATE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			path, _ := cmd.Flags().GetString("file")
			if path != "" && path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open request: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runCalc(in, cmd.OutOrStdout(), cfg.LoyaltyRules())
		},
	}
	cmd.Flags().StringP("file", "f", "", "Path to the bill request JSON (default stdin)")
	return cmd
}

func runCalc(in io.Reader, out io.Writer, rules billing.Rules) error {
	var req billing.Request
	decoder := json.NewDecoder(in)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	input, err := req.Input()
	if err != nil {
		return err
	}
	bill, err := billing.NewCalculator(rules).Compute(input)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(bill)
}
