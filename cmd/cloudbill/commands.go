package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xraph/cloudbill"
	"github.com/xraph/cloudbill/ingest"
)

var loadConfigCmd = &cobra.Command{
	Use:   "load-config <file>",
	Short: "Load resources, categories and clients",
	Long: `Load a configuration document (XML or JSON) into the store.

Entities are replaced by id and appended when new. Clients with an
invalid NIT are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoadConfig,
}

var loadConsumptionsCmd = &cobra.Command{
	Use:   "load-consumptions <file>",
	Short: "Append consumption records",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadConsumptions,
}

var generateCmd = &cobra.Command{
	Use:   "generate <start> <end>",
	Short: "Generate invoices for unbilled consumptions in a period",
	Long: `Generate one invoice per client for every unbilled consumption dated
between start and end (dd/mm/yyyy, inclusive). Running it twice for the
same period issues nothing the second time.`,
	Args: cobra.ExactArgs(2),
	RunE: runGenerate,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <categories|resources> <start> <end>",
	Short: "Rank revenue by configuration or resource",
	Args:  cobra.ExactArgs(3),
	RunE:  runAnalyze,
}

var invoicePDFCmd = &cobra.Command{
	Use:   "invoice-pdf <number> <output>",
	Short: "Render an invoice as PDF",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvoicePDF,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print every stored entity with summary counts",
	RunE:  runQuery,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all billing data",
	RunE:  runReset,
}

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "write a PDF report to this file instead of printing JSON")
	resetCmd.Flags().BoolP("force", "f", false, "skip confirmation prompt")

	rootCmd.AddCommand(loadConfigCmd)
	rootCmd.AddCommand(loadConsumptionsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(invoicePDFCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(resetCmd)
}

func runLoadConfig(cmd *cobra.Command, args []string) error {
	data, format, err := readDocument(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.engine.ImportConfiguration(ctx, bytes.NewReader(data), format)
		if err != nil {
			return err
		}
		c := res.Counts
		fmt.Fprintf(cmd.OutOrStdout(), "%d recursos, %d categorías, %d configuraciones, %d clientes, %d instancias creadas\n",
			c.Resources, c.Categories, c.Configurations, c.Clients, c.Instances)
		if c.RejectedClients > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d clientes rechazados\n", c.RejectedClients)
		}
		return nil
	})
}

func runLoadConsumptions(cmd *cobra.Command, args []string) error {
	data, format, err := readDocument(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.engine.ImportConsumptions(ctx, bytes.NewReader(data), format)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d consumos procesados\n", res.Counts.Consumptions)
		if res.Counts.RejectedConsumptions > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%d consumos rechazados\n", res.Counts.RejectedConsumptions)
		}
		return nil
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		invoices, err := a.engine.GenerateInvoices(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d facturas generadas\n", len(invoices))
		for _, inv := range invoices {
			fmt.Fprintf(out, "%s\t%s\t%s\tQ%s\n", inv.Number, inv.ClientNIT, inv.IssueDate, inv.Total.FormatMajor())
		}
		return nil
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		result, err := a.engine.AnalyzeSales(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if output == "" {
			return printJSON(cmd.OutOrStdout(), result)
		}
		pdf, err := a.reports.RenderSalesAnalysis(result)
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, pdf, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report saved to %s\n", output)
		return nil
	})
}

func runInvoicePDF(cmd *cobra.Command, args []string) error {
	number, output := args[0], args[1]
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var buf bytes.Buffer
		if err := a.engine.RenderInvoice(ctx, number, "pdf", &buf); err != nil {
			return err
		}
		if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s saved to %s\n", number, output)
		return nil
	})
}

func runQuery(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		snap, err := a.engine.Snapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"data":    snap,
			"summary": snap.Summary(),
		})
	})
}

func runReset(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		fmt.Fprint(cmd.OutOrStdout(), "This deletes every resource, client, consumption and invoice. Continue? [y/N]: ")
		var answer string
		_, _ = fmt.Fscanln(cmd.InOrStdin(), &answer)
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.engine.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sistema inicializado correctamente. Todos los datos han sido eliminados.")
		return nil
	})
}

// readDocument reads an import file and picks its encoding from the
// extension, then the content.
func readDocument(path string) ([]byte, ingest.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", cloudbill.ValidationError{Field: "file", Message: "empty document"}
	}
	return data, ingest.DetectFormat(mime.TypeByExtension(filepath.Ext(path)), data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
