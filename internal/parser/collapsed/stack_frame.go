// Package collapsed parses collapsed (folded) stack files and builds CPU
// calling context trees and allocation snapshots from them.
// Collapsed format example: thread_name-pid/tid;func1;func2;func3 count
package collapsed

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/perf-snapshot/pkg/profiling"
)

// ThreadInfo represents extracted thread information from a stack trace.
type ThreadInfo struct {
	ThreadName string `json:"thread_name"`
	TID        int    `json:"tid"`
}

// APM format regex: [Thread-7 tid=1060369]
var apmFormatRegex = regexp.MustCompile(`^\[(.+)\s+tid=(\d+)\]$`)

// Invalid data pattern: 5_2175795_[002]_83367.826506:-?/10101010
var invalidDataRegex = regexp.MustCompile(`^\d+_\d+_`)

// ExtractThreadInfo extracts thread name and TID from the first frame.
// Supports two formats:
// 1. Standard perf format: "process_name-pid/tid" e.g., "sap1009-?/1088670"
// 2. APM format: "[Thread-7 tid=1060369]"
func ExtractThreadInfo(threadFrame string) *ThreadInfo {
	info := &ThreadInfo{
		ThreadName: threadFrame,
		TID:        -1,
	}

	if strings.HasPrefix(threadFrame, "[") && strings.HasSuffix(threadFrame, "]") {
		matches := apmFormatRegex.FindStringSubmatch(threadFrame)
		if len(matches) == 3 {
			info.ThreadName = matches[1]
			if tid, err := strconv.Atoi(matches[2]); err == nil {
				info.TID = tid
			}
			return info
		}
	}

	lastDash := strings.LastIndex(threadFrame, "-")
	if lastDash > 0 {
		info.ThreadName = threadFrame[:lastDash]
	}

	lastSlash := strings.LastIndex(threadFrame, "/")
	if lastSlash > 0 && lastSlash < len(threadFrame)-1 {
		if tid, err := strconv.Atoi(threadFrame[lastSlash+1:]); err == nil {
			info.TID = tid
		}
	}

	return info
}

// IsSwapperThread checks if the extracted thread name is the swapper (idle) thread.
func IsSwapperThread(threadName string) bool {
	return profiling.IsSwapperThread(threadName)
}

// IsInvalidData checks if the line matches invalid data pattern.
// e.g., "5_2175795_[002]_83367.826506:-?/10101010"
func IsInvalidData(firstFrame string) bool {
	return invalidDataRegex.MatchString(firstFrame)
}

// SplitFuncAndModule splits "funcName(module)" into its parts.
func SplitFuncAndModule(frame string) (function, module string) {
	return profiling.SplitFuncAndModule(frame)
}

// TrimAnnotation strips a frame type suffix such as "_[j]".
func TrimAnnotation(frame string) string {
	return profiling.TrimAnnotation(frame)
}
