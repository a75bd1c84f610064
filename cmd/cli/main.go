package main

import "github.com/perf-snapshot/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
