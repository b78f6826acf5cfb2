package main

import (
	"github.com/spf13/cobra"

	"github.com/haasonsaas/inferprice/internal/export"
	"github.com/haasonsaas/inferprice/internal/markdown"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the HTTP API.
func buildServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pricing API over HTTP",
		Long: `Serve the pricing API over HTTP.

The server will:
1. Load configuration and open the configured store
2. Load the stored graph, fetching it from the upstream when empty
3. Refresh on source.refresh and reload on file changes when configured
4. Serve /api/*, /healthz and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Serve with built-in defaults
  inferprice serve

  # Serve with a config file on another port
  inferprice serve --config /etc/inferprice.yaml --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.host and server.port)")
	return cmd
}

// =============================================================================
// Fetch Command
// =============================================================================

type fetchOptions struct {
	input string
	json  bool
}

// buildFetchCmd creates the "fetch" command.
func buildFetchCmd() *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch, normalize and store the upstream listing",
		Example: `  # Refresh from the configured upstream
  inferprice fetch

  # Import a saved payload into the store
  inferprice fetch --input models.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Read the payload from a file instead of the upstream")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the normalization report as JSON")
	return cmd
}

// =============================================================================
// List Command
// =============================================================================

type filterOptions struct {
	input      string
	categories []string
	vendors    []string
	context    string
	sort       string
	desc       bool
}

func (o *filterOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "Normalize a payload file instead of reading the store")
	cmd.Flags().StringSliceVar(&o.categories, "category", nil, "Only show these category names (repeatable)")
	cmd.Flags().StringSliceVar(&o.vendors, "vendor", nil, "Only show these vendor names (repeatable)")
	cmd.Flags().StringVar(&o.context, "context", "all", "Context window bucket: all, small, medium, large, xlarge")
	cmd.Flags().StringVar(&o.sort, "sort", "", "Sort key: displayName, vendorName, categoryName, parametersB, contextWindow, tokenLimit, inputPrice, outputPrice, samplePrice")
	cmd.Flags().BoolVar(&o.desc, "desc", false, "Sort descending")
}

type listOptions struct {
	filterOptions
	inputText  string
	outputText string
	multiplier int
	format     string
}

// buildListCmd creates the "list" command.
func buildListCmd() *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a filtered, sorted pricing table",
		Example: `  # Cheapest Anthropic models for the sample conversation
  inferprice list --vendor Anthropic --sort samplePrice

  # Million-token context models as a markdown table
  inferprice list --context xlarge --format markdown`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.inputText, "input-text", "", "Sample input text (default: built-in conversation)")
	cmd.Flags().StringVar(&opts.outputText, "output-text", "", "Sample output text (default: built-in reply)")
	cmd.Flags().IntVarP(&opts.multiplier, "multiplier", "m", 1, "Repeat the sample N times (1-1000)")
	cmd.Flags().StringVar(&opts.format, "format", string(markdown.TableModeText), "Table format: text, markdown, bullets")
	return cmd
}

// =============================================================================
// Estimate Command
// =============================================================================

type estimateOptions struct {
	input      string
	text       string
	file       string
	outputText string
	outputFile string
	model      string
	multiplier int
	json       bool
}

// buildEstimateCmd creates the "estimate" command.
func buildEstimateCmd() *cobra.Command {
	var opts estimateOptions
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate tokens and cost for a text",
		Long: `Estimate tokens and cost for a text.

The input text comes from --text, --file or stdin. Without any of them the
built-in sample conversation is priced.`,
		Example: `  # Price a prompt on every model
  inferprice estimate --text "Summarize this contract"

  # Price a file with an expected reply on one model
  cat prompt.txt | inferprice estimate --output-text "..." --model anthropic/claude-3-opus`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Normalize a payload file instead of reading the store")
	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "Input text")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the input text from a file")
	cmd.Flags().StringVar(&opts.outputText, "output-text", "", "Expected output text")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "Read the expected output text from a file")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model id or system name (default: all models)")
	cmd.Flags().IntVarP(&opts.multiplier, "multiplier", "m", 1, "Repeat the texts N times (1-1000)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print JSON")
	return cmd
}

// =============================================================================
// Export Command
// =============================================================================

type exportOptions struct {
	filterOptions
	format string
	output string
}

// buildExportCmd creates the "export" command.
func buildExportCmd() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export models as CSV or JSON",
		Example: `  inferprice export --format csv --output ai_models_pricing.csv
  inferprice export --format json --vendor Google`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.format, "format", string(export.FormatCSV), "Export format: csv or json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file, - for stdout")
	return cmd
}

// =============================================================================
// Validate Command
// =============================================================================

type validateOptions struct {
	input string
	dir   string
	json  bool
}

// buildValidateCmd creates the "validate" command.
func buildValidateCmd() *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check graph integrity and flag suspicious prices",
		Long: `Check graph integrity and flag suspicious prices.

Integrity errors (dangling references, duplicate ids, negative prices) make
the command exit non-zero. Suspicious prices are reported as warnings.`,
		Example: `  # Validate the configured store
  inferprice validate

  # Validate a directory of models.json, categories.json and vendors.json
  inferprice validate --dir ./data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Normalize and validate a payload file")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Validate canonical JSON files in this directory")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print issues as JSON")
	return cmd
}

// =============================================================================
// Backup Command
// =============================================================================

type backupOptions struct {
	dir          string
	historyLimit int
	list         bool
}

// buildBackupCmd creates the "backup" command.
func buildBackupCmd() *cobra.Command {
	var opts backupOptions
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped pricing backup",
		Long: `Write a timestamped pricing backup of every priced model.

Backups go to backup.dir and are uploaded to S3 when backup.s3.bucket is
set. SQL stores also include recent price history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Backup directory (overrides backup.dir)")
	cmd.Flags().IntVar(&opts.historyLimit, "history-limit", 10, "Price history points per model (SQL stores only)")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List existing backups instead of writing one")
	return cmd
}

// =============================================================================
// History Command
// =============================================================================

type historyOptions struct {
	limit  int
	format string
}

// buildHistoryCmd creates the "history" command.
func buildHistoryCmd() *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history <model>",
		Short: "Show recorded price changes of a model",
		Long: `Show recorded price changes of a model, newest first.

Price history is recorded by the sqlite and postgres stores on every save.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args[0], opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of points (0 for all)")
	cmd.Flags().StringVar(&opts.format, "format", string(markdown.TableModeText), "Table format: text, markdown, bullets")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file or a data file",
		Example: `  inferprice config schema > inferprice.schema.json
  inferprice config schema --file models.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Print the schema of models.json, categories.json or vendors.json instead")
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd)
		},
	}
}
