package cmd

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/solatis/cratedigger/internal/core/db"
	"github.com/solatis/cratedigger/internal/report"
	"github.com/solatis/cratedigger/internal/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a candidate report",
	Long: `Generate a candidate report from files or from the catalog database.

File mode:    cratedigger report --records tracks.json --context context.yaml
Catalog mode: cratedigger report --db-url sqlite://catalog.db [--now TIME] [--persist]`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("records", "", "records file (JSON array)")
	reportCmd.Flags().String("context", "", "context file (JSON, or YAML with .yaml/.yml extension)")
	reportCmd.Flags().String("out", "", "write the report to this file instead of stdout")
	reportCmd.Flags().Bool("table", false, "print a summary table instead of JSON")
	reportCmd.Flags().String("now", "", "current time for catalog mode (default: now, RFC 3339 UTC)")
	reportCmd.Flags().Bool("persist", false, "store the report in the catalog (catalog mode)")
	reportCmd.Flags().Int("workers", 0, "concurrent rule evaluations (default from config)")
	reportCmd.Flags().Int("max-candidates", 0, "truncate the report (catalog mode; default from config)")
	reportCmd.Flags().Bool("include-zero", true, "keep rules with no matches (catalog mode; default from config)")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	workers := cfg.Engine.Workers
	if cmd.Flags().Changed("workers") {
		workers, _ = cmd.Flags().GetInt("workers")
	}
	generator := report.NewGenerator(report.WithWorkers(workers), report.WithLogger(logger))

	recordsPath, _ := cmd.Flags().GetString("records")
	contextPath, _ := cmd.Flags().GetString("context")

	var (
		rep *types.Report
		err error
	)
	switch {
	case recordsPath != "" || contextPath != "":
		if recordsPath == "" || contextPath == "" {
			return fmt.Errorf("--records and --context must be given together")
		}
		rep, err = reportFromFiles(ctx, generator, recordsPath, contextPath)
	case cfg.Database.URL != "":
		rep, err = reportFromCatalog(ctx, cmd, generator)
	default:
		return fmt.Errorf("either --records/--context or --db-url is required")
	}
	if err != nil {
		return err
	}

	return writeReport(cmd, rep)
}

func reportFromFiles(ctx context.Context, generator *report.Generator, recordsPath, contextPath string) (*types.Report, error) {
	recordsJSON, err := readInput(recordsPath)
	if err != nil {
		return nil, err
	}
	contextJSON, err := readContext(contextPath)
	if err != nil {
		return nil, err
	}
	return generator.GenerateReportJSONContext(ctx, recordsJSON, contextJSON)
}

func reportFromCatalog(ctx context.Context, cmd *cobra.Command, generator *report.Generator) (*types.Report, error) {
	now, _ := cmd.Flags().GetString("now")
	if now == "" {
		now = time.Now().UTC().Format(time.RFC3339)
	}

	policy := cfg.Engine.Policy()
	if cmd.Flags().Changed("include-zero") {
		include, _ := cmd.Flags().GetBool("include-zero")
		policy.ExcludeZeroCandidates = !include
	}
	if cmd.Flags().Changed("max-candidates") {
		policy.MaxCandidates, _ = cmd.Flags().GetInt("max-candidates")
	}

	database, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	catalog, err := db.NewCatalog(database)
	if err != nil {
		return nil, err
	}

	rep, err := generator.GenerateFrom(ctx, catalog, catalog, now, policy)
	if err != nil {
		return nil, err
	}

	if persist, _ := cmd.Flags().GetBool("persist"); persist {
		id, err := catalog.SaveReport(ctx, rep)
		if err != nil {
			return nil, err
		}
		logger.Info("report stored", "report_id", id, "candidates", len(rep.Candidates))
	}
	return rep, nil
}

func readInput(path string) ([]byte, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// readContext returns the context file as JSON. YAML files are converted so
// the JSON entry point performs the same validation for both.
func readContext(path string) ([]byte, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return data, nil
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	v, err := yamlValue(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML: %w", err)
	}
	return json.Marshal(v)
}

// yamlValue converts a YAML node into values encoding/json accepts.
// Timestamps keep their source text so currentTime reaches the report
// unchanged, and mapping keys are always their scalar text.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, elem := range n.Content {
			v, err := yamlValue(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		if n.ShortTag() == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func writeReport(cmd *cobra.Command, rep *types.Report) error {
	out := cmd.OutOrStdout()

	outPath, _ := cmd.Flags().GetString("out")
	if outPath != "" {
		expanded, err := expandPath(outPath)
		if err != nil {
			return err
		}
		f, err := os.Create(expanded)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	if asTable, _ := cmd.Flags().GetBool("table"); asTable {
		return renderTable(out, rep)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rep)
}

// renderTable prints one row per candidate.
func renderTable(out io.Writer, rep *types.Report) error {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Rule", "Label", "Priority", "Tracks", "Duration", "Mean BPM", "Top Keys"})
	for _, c := range rep.Candidates {
		meanBPM := "-"
		if c.Stats.MeanBPM != nil {
			meanBPM = strconv.FormatFloat(*c.Stats.MeanBPM, 'f', 1, 64)
		}
		row := []string{
			c.RuleID,
			c.Label,
			strconv.Itoa(c.Priority),
			strconv.Itoa(c.Stats.Count),
			formatDuration(c.Stats.TotalDurationSeconds),
			meanBPM,
			topKeys(c.Stats.KeyHistogram, 3),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintf(out, "generated at %s, %d candidates\n", rep.GeneratedAt, len(rep.Candidates))
	return nil
}

func formatDuration(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

// topKeys lists the n most frequent keys, ties broken by key.
// The missing-key bucket is shown as "?".
func topKeys(hist map[string]int, n int) string {
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(hist))
	for k, c := range hist {
		entries = append(entries, entry{k, c})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	var parts []string
	for i, e := range entries {
		if i == n {
			break
		}
		key := e.key
		if key == "" {
			key = "?"
		}
		parts = append(parts, fmt.Sprintf("%s:%d", key, e.count))
	}
	return strings.Join(parts, " ")
}
