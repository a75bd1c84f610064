package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perf-snapshot/internal/paging"
	"github.com/perf-snapshot/internal/service"
	"github.com/perf-snapshot/pkg/model"
)

var (
	pageSort    string
	pageOrder   string
	pagePath    string
	sampleShuff int
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "Page through the class histogram of a snapshot",
	Long: `Histograms are presented in buckets of 1000 classes. A bucket is expanded
with --path, which lists the indexes of the containers to open from the
top level down. Large histograms also offer a sample of their classes.`,
}

var objectsPageCmd = &cobra.Command{
	Use:   "page <uuid>",
	Short: "Show one level of the paged class histogram",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectsPage,
}

var objectsSampleCmd = &cobra.Command{
	Use:   "sample <uuid>",
	Short: "Show a sample of the classes of a large histogram",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectsSample,
}

func init() {
	rootCmd.AddCommand(objectsCmd)
	objectsCmd.AddCommand(objectsPageCmd, objectsSampleCmd)
	objectsCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	objectsPageCmd.Flags().StringVarP(&pageSort, "sort", "s", "", "Sort key: name, count, size, live (source order if empty)")
	objectsPageCmd.Flags().StringVar(&pageOrder, "order", "desc", "Sort order: asc, desc")
	objectsPageCmd.Flags().StringVarP(&pagePath, "path", "p", "", "Comma-separated container indexes, e.g. 0 or 2,0")

	objectsSampleCmd.Flags().IntVar(&sampleShuff, "shuffle", 0, "Sample number: 0 is evenly strided, others are random")
}

func parsePath(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	path := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid path element %q", p)
		}
		path[i] = v
	}
	return path, nil
}

func runObjectsPage(cmd *cobra.Command, args []string) error {
	path, err := parsePath(pagePath)
	if err != nil {
		return err
	}
	sort := paging.Sort{Key: pageSort}
	if pageSort != "" {
		if sort.Order, err = paging.ParseSortOrder(pageOrder); err != nil {
			return err
		}
	}

	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	nodes, err := svc.Page(cmd.Context(), args[0], service.PageRequest{Sort: sort, Path: path})
	if err != nil {
		return err
	}
	return printPage(cmd.OutOrStdout(), nodes)
}

func runObjectsSample(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	nodes, err := svc.Sample(cmd.Context(), args[0], sampleShuff)
	if err != nil {
		return err
	}
	return printPage(cmd.OutOrStdout(), nodes)
}

func printPage(w io.Writer, nodes []model.PageNode) error {
	if jsonOutput {
		return printJSON(w, nodes)
	}
	var rows []model.ClassRow
	for i, n := range nodes {
		if n.Row == nil {
			fmt.Fprintf(w, "[%d] %s (%d)\n", i, n.Name, n.Children)
			continue
		}
		rows = append(rows, *n.Row)
	}
	if len(rows) == 0 {
		return nil
	}
	return printRows(w, rows)
}
