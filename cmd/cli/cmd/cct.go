package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perf-snapshot/internal/cct"
	"github.com/perf-snapshot/internal/flamegraph"
	"github.com/perf-snapshot/internal/parser/collapsed"
	"github.com/perf-snapshot/internal/service"
	"github.com/perf-snapshot/pkg/compression"
	"github.com/perf-snapshot/pkg/filter"
)

var (
	// CPU tree flags shared by the cct commands
	cctInput        string
	cctOutput       string
	cctLevel        string
	cctInterval     int64
	cctTwoStamps    bool
	cctHideJDK      bool
	cctGroupThreads bool
	cctFilter       string
	cctFilterType   string

	cctFormat  string
	cctWorkers int

	flameFormat     string
	flameMinPercent float64
	flameSecond     bool
)

var cctCmd = &cobra.Command{
	Use:   "cct",
	Short: "Build and export calling context trees from CPU samples",
}

var cctExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the calling context tree of every thread",
	Long: `Export reads collapsed CPU stacks and writes one tree per thread.

Supported formats:
  - xml  : nested <node> elements (default)
  - html : nested lists
  - csv  : one row per node with its depth`,
	RunE: runCCTExport,
}

var cctFlameCmd = &cobra.Command{
	Use:   "flamegraph",
	Short: "Merge all thread trees into one flame graph",
	RunE:  runCCTFlame,
}

func init() {
	rootCmd.AddCommand(cctCmd)
	cctCmd.AddCommand(cctExportCmd, cctFlameCmd)

	for _, c := range []*cobra.Command{cctExportCmd, cctFlameCmd} {
		c.Flags().StringVarP(&cctInput, "input", "i", "", "Collapsed CPU stacks file, - for stdin (required)")
		c.Flags().StringVarP(&cctLevel, "level", "l", "method", "Aggregation level: method, class, package")
		c.Flags().Int64Var(&cctInterval, "interval", 1, "Time one sample stands for")
		c.Flags().BoolVar(&cctTwoStamps, "two-stamps", false, "Record the second time dimension")
		c.Flags().BoolVar(&cctHideJDK, "hide-jdk", false, "Collapse JDK frames")
		c.Flags().BoolVar(&cctGroupThreads, "group-threads", false, "Merge threads of the same pool")
		c.Flags().StringVar(&cctFilter, "filter", "", "Frame name filter pattern")
		c.Flags().StringVar(&cctFilterType, "filter-type", "contains", "Filter type: starts-with, contains, not-contains, ends-with, equals, regexp")
		c.MarkFlagRequired("input")
	}

	cctExportCmd.Flags().StringVarP(&cctOutput, "output", "o", "", "Output directory (stdout if empty)")
	cctExportCmd.Flags().StringVarP(&cctFormat, "format", "f", "", "Export format: xml, html, csv (defaults to the configured format)")
	cctExportCmd.Flags().IntVarP(&cctWorkers, "workers", "w", 0, "Concurrent exports (defaults to the configured count)")

	cctFlameCmd.Flags().StringVarP(&cctOutput, "output", "o", "", "Output file (stdout if empty)")
	cctFlameCmd.Flags().StringVarP(&flameFormat, "format", "f", "json", "Output format: json, json.gz, json.zst, folded")
	cctFlameCmd.Flags().Float64Var(&flameMinPercent, "min-percent", 0.01, "Fold nodes below this share of the total into their parent")
	cctFlameCmd.Flags().BoolVar(&flameSecond, "second-stamp", false, "Weigh nodes by the second time dimension")
}

func cctRequest() (service.CCTRequest, error) {
	level, err := cct.ParseLevel(cctLevel)
	if err != nil {
		return service.CCTRequest{}, err
	}

	var nameFilter *filter.NameFilter
	if cctFilter != "" {
		typ, err := filter.ParseType(cctFilterType)
		if err != nil {
			return service.CCTRequest{}, err
		}
		if nameFilter, err = filter.NewNameFilter(cctFilter, typ); err != nil {
			return service.CCTRequest{}, err
		}
	}

	return service.CCTRequest{
		Level:   level,
		Workers: cctWorkers,
		CPU: collapsed.CPUOptions{
			SampleInterval:          cctInterval,
			CollectingTwoTimeStamps: cctTwoStamps,
			HideJDK:                 cctHideJDK,
			Filter:                  nameFilter,
			GroupThreads:            cctGroupThreads,
		},
	}, nil
}

func runCCTExport(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	req, err := cctRequest()
	if err != nil {
		return err
	}
	req.Format = cct.Format(cctFormat)
	if req.Format == "" {
		req.Format = cct.Format(cfg.Export.Format)
	}
	switch req.Format {
	case cct.FormatXML, cct.FormatHTML, cct.FormatCSV:
	default:
		return fmt.Errorf("unsupported export format: %s", req.Format)
	}

	in, err := openInput(cctInput)
	if err != nil {
		return err
	}
	defer in.Close()

	svc, err := service.New(cfg, log)
	if err != nil {
		return err
	}
	results, err := svc.ExportCCT(cmd.Context(), in, req)
	if err != nil {
		return err
	}

	if cctOutput == "" {
		out := cmd.OutOrStdout()
		for _, r := range results {
			out.Write(r.Data)
		}
		return nil
	}

	if err := os.MkdirAll(cctOutput, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, r := range results {
		path := filepath.Join(cctOutput, safeFileName(r.Name)+"."+string(req.Format))
		if err := os.WriteFile(path, r.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Info("Wrote %s (%d bytes)", path, len(r.Data))
	}
	return nil
}

func runCCTFlame(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	req, err := cctRequest()
	if err != nil {
		return err
	}

	in, err := openInput(cctInput)
	if err != nil {
		return err
	}
	defer in.Close()

	svc, err := service.New(cfg, log)
	if err != nil {
		return err
	}
	fg, err := svc.FlameGraph(cmd.Context(), in, service.FlameRequest{
		CCTRequest:         req,
		MinPercent:         flameMinPercent,
		UseSecondTimestamp: flameSecond,
	})
	if err != nil {
		return err
	}
	return writeFlameGraph(cmd, fg, flameFormat, cctOutput)
}

func writeFlameGraph(cmd *cobra.Command, fg *flamegraph.FlameGraph, format, output string) error {
	var codec compression.Type
	switch format {
	case "json", "folded":
	case "json.gz":
		codec = compression.TypeGzip
	case "json.zst":
		codec = compression.TypeZstd
	default:
		return fmt.Errorf("unsupported flame graph format: %s", format)
	}

	if output == "" {
		var w flamegraph.Writer
		switch format {
		case "json":
			w = flamegraph.NewJSONWriter()
		case "folded":
			w = &flamegraph.FoldedWriter{SkipRoot: true}
		default:
			w = flamegraph.NewCompressedWriter(codec)
		}
		return w.Write(fg, cmd.OutOrStdout())
	}

	switch format {
	case "json":
		if err := flamegraph.NewJSONWriter().WriteToFile(fg, output); err != nil {
			return err
		}
	case "folded":
		if err := (&flamegraph.FoldedWriter{SkipRoot: true}).WriteToFile(fg, output); err != nil {
			return err
		}
	default:
		res, err := flamegraph.NewCompressedWriter(codec).WriteToFileWithStats(fg, output)
		if err != nil {
			return err
		}
		GetLogger().Debug("Compressed flame graph JSON %d -> %d bytes (%.1f%%)",
			res.JSONSize, res.CompressedSize, res.CompressionPct)
	}
	GetLogger().Info("Wrote flame graph to %s (total %d %s, depth %d)", output, fg.Total, fg.Unit, fg.MaxDepth)
	return nil
}

func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
