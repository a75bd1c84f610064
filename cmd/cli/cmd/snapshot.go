package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/perf-snapshot/internal/memory"
	"github.com/perf-snapshot/internal/repository"
	"github.com/perf-snapshot/internal/service"
	"github.com/perf-snapshot/pkg/filter"
	"github.com/perf-snapshot/pkg/model"
)

var (
	snapInput       string
	snapName        string
	snapKind        string
	snapStacks      bool
	snapClassFilter string

	listKind   string
	listLimit  int
	listOffset int

	treeFilter     string
	treeFilterType string
	treeSort       string
	treeAscending  bool
	treeHideDead   bool
	treeMaxDepth   int

	allocBySize   bool
	allocOutput   string
	allocFormat   string
	allocMinShare float64

	jsonOutput bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture, store and inspect memory snapshots",
}

var snapshotBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Capture a snapshot from collapsed allocation stacks",
	Long: `Build reads collapsed allocation stacks whose innermost frame names the
allocated class, e.g.

  main-?/1;app.Main.main;app.Cache.put;java.lang.String_[i] 3 96

where the numbers are the object count and the allocated bytes.`,
	Args: cobra.NoArgs,
	RunE: runSnapshotBuild,
}

var snapshotInfoCmd = &cobra.Command{
	Use:   "info <uuid>",
	Short: "Describe a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotInfo,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotClassesCmd = &cobra.Command{
	Use:   "classes <uuid>",
	Short: "Print the class histogram of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotClasses,
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <uuid> <baseline-uuid>",
	Short: "Subtract a baseline snapshot and store the difference",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotDiff,
}

var snapshotTreeCmd = &cobra.Command{
	Use:   "tree <uuid> <class>",
	Short: "Show the allocation call paths of a class",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotTree,
}

var snapshotFlameCmd = &cobra.Command{
	Use:   "flamegraph <uuid> <class>",
	Short: "Render the allocation call paths of a class as a flame graph",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotFlame,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <uuid>",
	Short: "Delete a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotImport,
}

var snapshotFetchCmd = &cobra.Command{
	Use:   "fetch <uuid> <file>",
	Short: "Copy a stored snapshot file to the local disk",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotFetch,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotBuildCmd, snapshotInfoCmd, snapshotListCmd, snapshotClassesCmd,
		snapshotDiffCmd, snapshotTreeCmd, snapshotFlameCmd, snapshotDeleteCmd, snapshotImportCmd, snapshotFetchCmd)

	snapshotCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	snapshotBuildCmd.Flags().StringVarP(&snapInput, "input", "i", "", "Collapsed allocation stacks file, - for stdin (required)")
	snapshotBuildCmd.Flags().StringVarP(&snapName, "name", "n", "", "Snapshot name (defaults to its UUID)")
	snapshotBuildCmd.Flags().StringVarP(&snapKind, "kind", "k", "alloc", "Snapshot kind: alloc, liveness")
	snapshotBuildCmd.Flags().BoolVar(&snapStacks, "stacks", false, "Record allocation call paths")
	snapshotBuildCmd.Flags().StringVar(&snapClassFilter, "classes", "", "Only keep classes starting with this prefix")
	snapshotBuildCmd.MarkFlagRequired("input")

	snapshotListCmd.Flags().StringVarP(&listKind, "kind", "k", "", "Only list snapshots of this kind")
	snapshotListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of snapshots")
	snapshotListCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of snapshots to skip")

	snapshotDiffCmd.Flags().StringVarP(&snapName, "name", "n", "", "Name of the diff snapshot")
	snapshotImportCmd.Flags().StringVarP(&snapName, "name", "n", "", "Snapshot name (defaults to its UUID)")

	for _, c := range []*cobra.Command{snapshotTreeCmd, snapshotFlameCmd} {
		c.Flags().StringVar(&treeFilter, "filter", "", "Method name filter pattern")
		c.Flags().StringVar(&treeFilterType, "filter-type", "contains", "Filter type: starts-with, contains, not-contains, ends-with, equals, regexp")
		c.Flags().BoolVar(&treeHideDead, "hide-dead", false, "Hide allocation sites without live objects (liveness snapshots)")
	}
	snapshotTreeCmd.Flags().StringVarP(&treeSort, "sort", "s", "size", "Sort key: name, count, size, live-count, live-size")
	snapshotTreeCmd.Flags().BoolVar(&treeAscending, "asc", false, "Sort ascending")
	snapshotTreeCmd.Flags().IntVar(&treeMaxDepth, "depth", 0, "Maximum depth to print (0 for all)")

	snapshotFlameCmd.Flags().BoolVar(&allocBySize, "by-size", true, "Weigh by bytes instead of object count")
	snapshotFlameCmd.Flags().StringVarP(&allocOutput, "output", "o", "", "Output file (stdout if empty)")
	snapshotFlameCmd.Flags().StringVarP(&allocFormat, "format", "f", "json", "Output format: json, json.gz, json.zst, folded")
	snapshotFlameCmd.Flags().Float64Var(&allocMinShare, "min-percent", 0, "Fold nodes below this share of the total into their parent")
}

func runSnapshotBuild(cmd *cobra.Command, args []string) error {
	kind, err := memory.ParseKind(snapKind)
	if err != nil {
		return err
	}
	req := service.BuildRequest{Name: snapName, Kind: kind, RecordStacks: snapStacks}
	if snapClassFilter != "" {
		if req.ClassFilter, err = filter.NewNameFilter(snapClassFilter, filter.TypeStartsWith); err != nil {
			return err
		}
	}

	in, err := openInput(snapInput)
	if err != nil {
		return err
	}
	defer in.Close()

	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.BuildSnapshot(cmd.Context(), in, req)
	if err != nil {
		return err
	}
	return printInfo(cmd.OutOrStdout(), info)
}

func runSnapshotInfo(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.Info(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printInfo(cmd.OutOrStdout(), info)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	infos, err := svc.List(cmd.Context(), repository.ListOptions{
		Kind:   model.SnapshotKind(listKind),
		Limit:  listLimit,
		Offset: listOffset,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), infos)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tNAME\tKIND\tCLASSES\tSIZE\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			info.UUID, info.Name, info.Kind, info.NumClasses, info.SizeBytes, formatTime(info.CreatedAt))
	}
	return tw.Flush()
}

func runSnapshotClasses(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	rows, err := svc.Classes(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	return printRows(cmd.OutOrStdout(), rows)
}

func runSnapshotDiff(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.Diff(cmd.Context(), args[0], args[1], snapName)
	if err != nil {
		return err
	}
	return printInfo(cmd.OutOrStdout(), info)
}

func treeRequest(class string) (service.TreeRequest, error) {
	req := service.TreeRequest{Class: class, Ascending: treeAscending, DontShowZero: treeHideDead}
	sortBy, err := memory.ParseSortBy(treeSort)
	if err != nil {
		return req, err
	}
	req.SortBy = sortBy
	if treeFilter != "" {
		typ, err := filter.ParseType(treeFilterType)
		if err != nil {
			return req, err
		}
		if req.Filter, err = filter.NewNameFilter(treeFilter, typ); err != nil {
			return req, err
		}
	}
	return req, nil
}

func runSnapshotTree(cmd *cobra.Command, args []string) error {
	req, err := treeRequest(args[1])
	if err != nil {
		return err
	}
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	root, err := svc.Tree(cmd.Context(), args[0], req)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), root)
	}

	out := cmd.OutOrStdout()
	root.Walk(func(n *memory.PresoNode, depth int) {
		if treeMaxDepth > 0 && depth > treeMaxDepth {
			return
		}
		fmt.Fprintf(out, "%s%s  objects=%d bytes=%d", strings.Repeat("  ", depth), n.Name, n.NCalls, n.TotalObjSize)
		if n.NLiveObjects != 0 || n.LiveObjSize != 0 {
			fmt.Fprintf(out, " live=%d live_bytes=%d", n.NLiveObjects, n.LiveObjSize)
		}
		fmt.Fprintln(out)
	})
	return nil
}

func runSnapshotFlame(cmd *cobra.Command, args []string) error {
	treeSort = "size"
	req, err := treeRequest(args[1])
	if err != nil {
		return err
	}
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	fg, err := svc.AllocationFlameGraph(cmd.Context(), args[0], req, allocBySize, allocMinShare)
	if err != nil {
		return err
	}
	return writeFlameGraph(cmd, fg, allocFormat, allocOutput)
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Delete(cmd.Context(), args[0])
}

func runSnapshotImport(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.Import(cmd.Context(), args[0], snapName)
	if err != nil {
		return err
	}
	return printInfo(cmd.OutOrStdout(), info)
}

func runSnapshotFetch(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Fetch(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	GetLogger().Info("Fetched snapshot %s to %s", args[0], args[1])
	return nil
}

func printInfo(w io.Writer, info *model.SnapshotInfo) error {
	if jsonOutput {
		return printJSON(w, info)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "UUID:\t%s\n", info.UUID)
	fmt.Fprintf(tw, "Name:\t%s\n", info.Name)
	fmt.Fprintf(tw, "Kind:\t%s\n", info.Kind)
	fmt.Fprintf(tw, "Classes:\t%d\n", info.NumClasses)
	fmt.Fprintf(tw, "Stacks:\t%t\n", info.HasStacks)
	fmt.Fprintf(tw, "Size:\t%d bytes (%s)\n", info.SizeBytes, info.Compression)
	fmt.Fprintf(tw, "Captured:\t%s - %s\n", formatTime(info.BeginTime), formatTime(info.TimeTaken))
	if info.IsDiff() {
		fmt.Fprintf(tw, "Baseline:\t%s\n", info.BaselineUUID)
	}
	fmt.Fprintf(tw, "Key:\t%s\n", info.StorageKey)
	return tw.Flush()
}

func printRows(w io.Writer, rows []model.ClassRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tOBJECTS\tBYTES\tLIVE\tCLASS\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t\n", r.ID, r.Count, r.Size, r.Live, r.Name)
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
