// =============================================================================
// pouch-ops - Price and Catalog Commands
// =============================================================================
//
// COMMAND USAGE:
//   pouchops price <shape> <size> <quantity>
//   pouchops catalog [--shape stand-up] [--export prices.xlsx]
//
// Both read the catalog named by catalog_file, or the built-in table.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pouch-ops/internal/catalog"
)

var (
	catalogShape  string
	catalogExport string
)

var priceCmd = &cobra.Command{
	Use:   "price <shape> <size> <quantity>",
	Short: "Price a pouch configuration",
	Long: `Price a pouch configuration from the catalog.

Shapes:     ` + strings.Join(shapeNames(), ", ") + `
Sizes:      xs, s, m, l, xl
Quantities: 100, 250, 500, 1000, 2000, 5000, 10000, 20000`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := strconv.Atoi(strings.ReplaceAll(args[2], ",", ""))
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}

		cat, err := catalog.Load(mainConfig.CatalogFile)
		if err != nil {
			return err
		}

		q, err := cat.Quote(args[0], args[1], qty)
		if errors.Is(err, catalog.ErrUnavailable) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s x %d: not available\n", args[0], args[1], qty)
			return err
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Shape:      %s\n", q.Shape)
		fmt.Fprintf(out, "Size:       %s (%s)\n", q.Size.Metric, q.Size.Imperial)
		fmt.Fprintf(out, "Quantity:   %d\n", q.Quantity)
		fmt.Fprintf(out, "Total:      $%s\n", q.Total.StringFixed(2))
		fmt.Fprintf(out, "Per pouch:  $%s\n", q.Unit.StringFixed(4))
		fmt.Fprintf(out, "Image:      %s\n", q.ImageURL)
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List or export the price table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(mainConfig.CatalogFile)
		if err != nil {
			return err
		}

		if catalogExport != "" {
			if err := catalog.WriteSheet(cat, catalogExport); err != nil {
				return err
			}
			log.Info().Str("path", catalogExport).Int("prices", len(cat.Entries())).Msg("exported price sheet")
			return nil
		}

		var filter catalog.Shape
		if catalogShape != "" {
			if filter, err = catalog.ParseShape(catalogShape); err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "SHAPE\tSIZE\tQTY\tTOTAL\tUNIT\t")
		for _, e := range cat.Entries() {
			if filter != "" && e.Shape != filter {
				continue
			}
			p := catalog.Price{Total: e.Total, Quantity: e.Quantity}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t\n", e.Shape, e.Size, e.Quantity, e.Total.StringFixed(2), p.Unit().StringFixed(4))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringVar(&catalogShape, "shape", "", "Only list this shape")
	catalogCmd.Flags().StringVar(&catalogExport, "export", "", "Write the table to an XLSX price sheet instead of listing it")
}

func shapeNames() []string {
	names := make([]string, len(catalog.Shapes))
	for i, s := range catalog.Shapes {
		names[i] = string(s)
	}
	return names
}
