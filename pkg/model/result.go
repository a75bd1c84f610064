// Package model defines the data structures shared between parsers, services and the CLI.
package model

import (
	"sort"
	"time"
)

// Sample is one collapsed stack line.
type Sample struct {
	ThreadName string   `json:"thread_name"`
	TID        int      `json:"tid,omitempty"`
	CallStack  []string `json:"callstack"`
	Value      int64    `json:"value"`
	// Bytes is set for allocation profiles only.
	Bytes int64 `json:"bytes,omitempty"`
}

// Leaf returns the innermost frame, or "" for an empty stack.
func (s *Sample) Leaf() string {
	if len(s.CallStack) == 0 {
		return ""
	}
	return s.CallStack[len(s.CallStack)-1]
}

// ThreadInfo represents information about a thread.
type ThreadInfo struct {
	TID        int     `json:"tid"`
	ThreadName string  `json:"thread_name"`
	Samples    int64   `json:"samples"`
	Percentage float64 `json:"percentage"`
}

// TopFunction represents a hot leaf frame with its self samples.
type TopFunction struct {
	Name        string  `json:"name"`
	SelfSamples int64   `json:"self"`
	SelfPercent float64 `json:"self_pct"`
}

// Profile is the parsed content of a collapsed stack file.
type Profile struct {
	Samples                 []*Sample           `json:"-"`
	Threads                 map[int]*ThreadInfo `json:"threads"`
	TopFuncs                []TopFunction       `json:"top_funcs"`
	TotalSamples            int64               `json:"total_samples"`
	TotalSamplesWithSwapper int64               `json:"total_samples_with_swapper"`
	SkippedLines            int                 `json:"skipped_lines"`
	ParsedAt                time.Time           `json:"parsed_at"`
}

// NewProfile creates an empty profile.
func NewProfile() *Profile {
	return &Profile{
		Samples:  make([]*Sample, 0),
		Threads:  make(map[int]*ThreadInfo),
		ParsedAt: time.Now(),
	}
}

// SortedThreads returns the threads by descending sample count, ties by TID.
func (p *Profile) SortedThreads() []*ThreadInfo {
	out := make([]*ThreadInfo, 0, len(p.Threads))
	for _, t := range p.Threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Samples != out[j].Samples {
			return out[i].Samples > out[j].Samples
		}
		return out[i].TID < out[j].TID
	})
	return out
}

// SamplesOf returns the samples recorded for tid, in input order.
func (p *Profile) SamplesOf(tid int) []*Sample {
	var out []*Sample
	for _, s := range p.Samples {
		if s.TID == tid {
			out = append(out, s)
		}
	}
	return out
}
