package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configJSON = `{
  "resources": [
    {"id": 1, "name": "CPU", "abbreviation": "cpu", "metric": "nucleo", "type": "Hardware", "value_per_hour": "1.5"}
  ],
  "categories": [
    {"id": 1, "name": "Web", "configurations": [
      {"id": 1, "name": "Small", "resources": [{"resource_id": 1, "quantity": "2"}]}
    ]}
  ],
  "clients": [
    {"nit": "12345-6", "name": "Acme", "instances": [
      {"id": 1, "configuration_id": 1, "name": "web-1", "status": "Vigente"}
    ]}
  ]
}`

const consumptionsJSON = `[
  {"nit": "12345-6", "instance_id": 1, "time_hours": "10", "date_time": "15/01/2024 10:00"}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBillingWorkflow(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "data.json")
	cfgFile := writeFile(t, dir, "config.json", configJSON)
	usageFile := writeFile(t, dir, "usage.json", consumptionsJSON)

	out, err := execute(t, "load-config", cfgFile, "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 recursos, 1 categorías, 1 configuraciones, 1 clientes, 1 instancias creadas")

	out, err = execute(t, "load-consumptions", usageFile, "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 consumos procesados")

	out, err = execute(t, "generate", "01/01/2024", "31/01/2024", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 facturas generadas")
	assert.Contains(t, out, "FAC-000001\t12345-6\t31/01/2024\tQ30.00")

	out, err = execute(t, "generate", "01/01/2024", "31/01/2024", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 facturas generadas")

	out, err = execute(t, "analyze", "categories", "01/01/2024", "31/01/2024", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_revenue"`)

	pdfPath := filepath.Join(dir, "FAC-000001.pdf")
	_, err = execute(t, "invoice-pdf", "FAC-000001", pdfPath, "--store", storePath)
	require.NoError(t, err)
	pdf, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	out, err = execute(t, "query", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, `"summary"`)

	out, err = execute(t, "reset", "--force", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sistema inicializado correctamente")
}

func TestBillingWorkflowSQLite(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "config.json", configJSON)
	usageFile := writeFile(t, dir, "usage.json", consumptionsJSON)
	t.Cleanup(func() {
		_ = rootCmd.PersistentFlags().Set("store-driver", "")
		_ = rootCmd.PersistentFlags().Set("store-dsn", "")
	})
	db := []string{"--store-driver", "sqlite", "--store-dsn", filepath.Join(dir, "cloudbill.db")}

	out, err := execute(t, append([]string{"load-config", cfgFile}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "1 recursos")

	_, err = execute(t, append([]string{"load-consumptions", usageFile}, db...)...)
	require.NoError(t, err)

	out, err = execute(t, append([]string{"generate", "01/01/2024", "31/01/2024"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "FAC-000001\t12345-6\t31/01/2024\tQ30.00")

	out, err = execute(t, append([]string{"generate", "01/01/2024", "31/01/2024"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "0 facturas generadas")

	_, err = os.Stat(filepath.Join(dir, "cloudbill.db"))
	require.NoError(t, err)
}

func TestLoadConfigRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.xml", "  \n")

	_, err := execute(t, "load-config", empty, "--store", filepath.Join(dir, "data.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestInvoicePDFUnknownNumber(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "invoice-pdf", "FAC-000099", filepath.Join(dir, "x.pdf"), "--store", filepath.Join(dir, "data.json"))
	require.Error(t, err)
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("CLOUDBILL_REDIS_ADDR", "localhost:6380")
	t.Setenv("CLOUDBILL_COMPANY_NAME", "Nubes S.A.")
	t.Setenv("CLOUDBILL_STORE_DRIVER", "sqlite")
	t.Setenv("CLOUDBILL_STORE_DSN", "billing.db")
	t.Chdir(t.TempDir())

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("store", "", "")
	require.NoError(t, cmd.Flags().Set("store", "custom.json"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "custom.json", cfg.Store.Path)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "billing.db", cfg.Store.DSN)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.Metrics)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "Nubes S.A.", cfg.Company.Name)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cloudbill.yaml", "http:\n  addr: \":9090\"\nlog:\n  format: json\n")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "invoice_number", "FAC-000001")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"invoice_number":"FAC-000001"`)

	buf.Reset()
	logger = newLogger(LogConfig{Level: "nonsense"}, &buf)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
}
