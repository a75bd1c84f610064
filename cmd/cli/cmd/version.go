package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/perf-snapshot/internal/snapfile"
)

var (
	// Version information, set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type versionInfo struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	FileFormat int    `json:"snapshot_file_format"`
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the build version, git commit and the snapshot file format written by this build.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildTime:  BuildTime,
			GoVersion:  runtime.Version(),
			Platform:   runtime.GOOS + "/" + runtime.GOARCH,
			FileFormat: int(snapfile.Version),
		}
		out := cmd.OutOrStdout()
		if versionJSON {
			return printJSON(out, info)
		}
		fmt.Fprintf(out, "%s version %s\n", BinName(), info.Version)
		fmt.Fprintf(out, "  Git Commit:  %s\n", info.GitCommit)
		fmt.Fprintf(out, "  Build Time:  %s\n", info.BuildTime)
		fmt.Fprintf(out, "  Go Version:  %s\n", info.GoVersion)
		fmt.Fprintf(out, "  OS/Arch:     %s\n", info.Platform)
		fmt.Fprintf(out, "  File Format: %d\n", info.FileFormat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print JSON")
}
