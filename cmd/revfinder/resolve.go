package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/revfinder/internal/cli"
	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <description>",
		Short: "Resolve one product and show which tier answered",
		Example: `  revfinder resolve "CERV HEINEKEN LN 330ML" --ncm 22030000
  revfinder resolve "SHAMPOO SEDA 325ML" --offline`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResolve,
	}

	cmd.Flags().String("ncm", "", "NCM printed on the invoice")
	cmd.Flags().String("total", "0", "line total in R$, used for the recoverable amount")
	cmd.Flags().Bool("offline", false, "never call the external classifier")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("ncm")
	totalRaw, _ := cmd.Flags().GetString("total")
	offline, _ := cmd.Flags().GetBool("offline")

	total, err := decimal.NewFromString(strings.ReplaceAll(totalRaw, ",", "."))
	if err != nil {
		return common.NewUserError("Invalid --total", err)
	}

	a, err := newApp(cmd.Context(), offline)
	if err != nil {
		return err
	}
	defer a.Close()

	rec := model.ProductRecord{
		Description: strings.Join(args, " "),
		Code:        code,
		TotalValue:  total,
	}

	res, err := a.resolver.Resolve(cmd.Context(), rec)
	if err != nil {
		return common.NewUserError("Record rejected", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.RenderResolution(res))
	if !res.Resolved() {
		fmt.Fprintln(out, cli.FormatWarning(res.Reason))
		return nil
	}

	rate, err := recoveryRate()
	if err != nil {
		return err
	}
	if res.Recoverable() && total.IsPositive() {
		fmt.Fprintln(out, cli.FormatSuccess(
			"Recoverable: R$ "+total.Mul(rate.Shift(-2)).StringFixed(2)))
	}
	return nil
}
