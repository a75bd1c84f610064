package collapsed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/perf-snapshot/internal/parser"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/model"
	"github.com/perf-snapshot/pkg/utils"
)

const (
	// DefaultTopN is the default number of top functions to return.
	DefaultTopN = 15

	maxLineSize = 16 * 1024 * 1024
)

// ParserOptions holds configuration options for the collapsed parser.
type ParserOptions struct {
	// TopN specifies how many top functions to return.
	TopN int

	// IncludeSwapper keeps samples of the swapper (idle) thread.
	IncludeSwapper bool

	// StrictMode fails on the first malformed line instead of skipping it.
	StrictMode bool

	// NoThreadFrame means stacks start directly with a frame; every sample is
	// then attributed to thread 0.
	NoThreadFrame bool

	Logger utils.Logger
}

// DefaultParserOptions returns default parser options.
func DefaultParserOptions() *ParserOptions {
	return &ParserOptions{
		TopN: DefaultTopN,
	}
}

// Parser implements the collapsed format parser.
type Parser struct {
	opts *ParserOptions
	log  utils.Logger
}

// NewParser creates a new collapsed format parser.
func NewParser(opts *ParserOptions) *Parser {
	if opts == nil {
		opts = DefaultParserOptions()
	}
	return &Parser{opts: opts, log: utils.OrNull(opts.Logger)}
}

// Parse parses collapsed format data from the reader. Lines look like
//
//	thread-pid/tid;frame1;frame2;frame3 count
//	thread-pid/tid;frame1;frame2;java.lang.String_[i] count bytes
//
// where the optional second number carries allocated bytes.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*model.Profile, error) {
	result := model.NewProfile()
	funcSamples := make(map[string]int64)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Interrupted(err)
		}

		lineNum++
		// Snapshot names must be valid UTF-8 to read back unchanged.
		line := strings.ToValidUTF8(strings.TrimSpace(scanner.Text()), "\uFFFD")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, err := p.parseLine(line)
		if err != nil {
			if p.opts.StrictMode {
				return nil, errors.Wrap(errors.CodeParseError, fmt.Sprintf("line %d", lineNum), err)
			}
			result.SkippedLines++
			continue
		}
		if sample == nil {
			result.SkippedLines++
			continue
		}

		result.TotalSamplesWithSwapper += sample.Value
		if IsSwapperThread(sample.ThreadName) && !p.opts.IncludeSwapper {
			continue
		}
		result.TotalSamples += sample.Value

		if leaf := sample.Leaf(); leaf != "" {
			funcSamples[leaf] += sample.Value
		}

		ti, ok := result.Threads[sample.TID]
		if !ok {
			ti = &model.ThreadInfo{TID: sample.TID, ThreadName: sample.ThreadName}
			result.Threads[sample.TID] = ti
		}
		ti.Samples += sample.Value

		result.Samples = append(result.Samples, sample)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeParseError, "failed to read input", err)
	}

	if result.TotalSamples > 0 {
		for _, ti := range result.Threads {
			ti.Percentage = float64(ti.Samples) / float64(result.TotalSamples) * 100
		}
	}
	result.TopFuncs = p.buildTopFuncs(funcSamples, result.TotalSamples)
	result.ParsedAt = time.Now()

	p.log.Debug("Parsed %d samples from %d lines (%d skipped, %d threads)",
		len(result.Samples), lineNum, result.SkippedLines, len(result.Threads))
	return result, nil
}

// SupportedFormats returns the formats supported by this parser.
func (p *Parser) SupportedFormats() []string {
	return []string{"collapsed", "folded"}
}

// Name returns the name of this parser.
func (p *Parser) Name() string {
	return "collapsed"
}

// parseLine parses a single line. It returns a nil sample for lines that
// carry recognizable but unusable data.
func (p *Parser) parseLine(line string) (*model.Sample, error) {
	stack, value, bytes, err := splitCounts(line)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(stack, ";")
	threadInfo := &ThreadInfo{TID: 0}
	if !p.opts.NoThreadFrame {
		if IsInvalidData(parts[0]) {
			return nil, nil
		}
		threadInfo = ExtractThreadInfo(parts[0])
		parts = parts[1:]
	}

	callStack := make([]string, 0, len(parts))
	for i, frame := range parts {
		if frame == "" || frame == "[]" {
			continue
		}
		if i == 0 && apmFormatRegex.MatchString(frame) {
			continue
		}
		funcName, _ := SplitFuncAndModule(frame)
		callStack = append(callStack, TrimAnnotation(funcName))
	}
	if len(callStack) == 0 {
		return nil, nil
	}

	return &model.Sample{
		ThreadName: threadInfo.ThreadName,
		TID:        threadInfo.TID,
		CallStack:  callStack,
		Value:      value,
		Bytes:      bytes,
	}, nil
}

// splitCounts separates the stack from its trailing count and optional
// byte total.
func splitCounts(line string) (stack string, value, bytes int64, err error) {
	lastSpace := strings.LastIndex(line, " ")
	if lastSpace <= 0 {
		return "", 0, 0, parser.ErrInvalidFormat
	}
	last, err := strconv.ParseInt(line[lastSpace+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid count value: %w", err)
	}
	stack = strings.TrimSpace(line[:lastSpace])

	if prevSpace := strings.LastIndex(stack, " "); prevSpace > 0 {
		if count, perr := strconv.ParseInt(stack[prevSpace+1:], 10, 64); perr == nil {
			return strings.TrimSpace(stack[:prevSpace]), count, last, nil
		}
	}
	if stack == "" {
		return "", 0, 0, parser.ErrInvalidFormat
	}
	return stack, last, 0, nil
}

func (p *Parser) buildTopFuncs(funcSamples map[string]int64, totalSamples int64) []model.TopFunction {
	if totalSamples == 0 {
		return nil
	}
	entries := make([]model.TopFunction, 0, len(funcSamples))
	for name, samples := range funcSamples {
		entries = append(entries, model.TopFunction{
			Name:        name,
			SelfSamples: samples,
			SelfPercent: float64(samples) / float64(totalSamples) * 100,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SelfSamples != entries[j].SelfSamples {
			return entries[i].SelfSamples > entries[j].SelfSamples
		}
		return entries[i].Name < entries[j].Name
	})
	if p.opts.TopN > 0 && len(entries) > p.opts.TopN {
		entries = entries[:p.opts.TopN]
	}
	return entries
}

var collapsedLineRegex = regexp.MustCompile(`^[^;]+(;[^;]+)*\s\d+(\s\d+)?$`)

// IsCollapsedFormat checks if the content appears to be in collapsed format.
func IsCollapsedFormat(line string) bool {
	return collapsedLineRegex.MatchString(strings.TrimSpace(line))
}
