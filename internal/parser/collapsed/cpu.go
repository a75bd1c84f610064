package collapsed

import (
	"context"
	"strconv"

	"github.com/perf-snapshot/internal/cct"
	"github.com/perf-snapshot/internal/jmethod"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/filter"
	"github.com/perf-snapshot/pkg/model"
	"github.com/perf-snapshot/pkg/parallel"
	"github.com/perf-snapshot/pkg/profiling"
	"github.com/perf-snapshot/pkg/utils"
)

// CPUOptions configure BuildContainers.
type CPUOptions struct {
	// SampleInterval is the time one sample stands for. Zero means 1, so
	// times equal sample counts.
	SampleInterval int64

	// CollectingTwoTimeStamps records a second time dimension. Collapsed
	// input carries one value, so both dimensions hold the same time.
	CollectingTwoTimeStamps bool

	// HideJDK marks JDK frames as filtered; a run of consecutive JDK frames
	// collapses into its outermost frame.
	HideJDK bool

	// Filter marks frames whose full name does not pass as filtered.
	Filter *filter.NameFilter

	// GroupThreads merges threads of the same pool (worker-1, worker-2)
	// into one tree.
	GroupThreads bool

	// Methods receives the frames. A new table is used when nil.
	Methods *jmethod.Table

	Workers int
	Logger  utils.Logger
}

type threadTree struct {
	id      int
	name    string
	stacks  [][]int32
	hidden  [][]bool
	weights []int64
}

// BuildContainers builds one flattened calling context tree per thread of
// p. Containers are ordered by descending thread samples and share one
// method table.
func BuildContainers(ctx context.Context, p *model.Profile, opts CPUOptions) ([]*cct.Container, error) {
	log := utils.OrNull(opts.Logger)
	methods := opts.Methods
	if methods == nil {
		methods = jmethod.NewTable()
	}
	interval := opts.SampleInterval
	if interval <= 0 {
		interval = 1
	}

	trees, err := collectThreads(ctx, p, methods, opts)
	if err != nil {
		return nil, err
	}

	pool := parallel.NewWorkerPool[*threadTree, *cct.Container](parallel.DefaultPoolConfig().WithWorkers(opts.Workers))
	results := pool.ExecuteFunc(ctx, trees, func(ctx context.Context, t *threadTree) (*cct.Container, error) {
		root := cct.NewRuntimeRoot()
		for i, stack := range t.stacks {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, errors.Interrupted(err)
				}
			}
			time0 := t.weights[i] * interval
			var time1 int64
			if opts.CollectingTwoTimeStamps {
				time1 = time0
			}
			root.AddStack(stack, time0, time1)
			markHidden(root, stack, t.hidden[i])
		}
		return cct.Build(root, cct.BuilderOptions{
			ThreadID:                t.id,
			ThreadName:              t.name,
			CollectingTwoTimeStamps: opts.CollectingTwoTimeStamps,
			Methods:                 methods,
		})
	})

	out := make([]*cct.Container, 0, len(results))
	for _, r := range results {
		if r.Skipped {
			return nil, errors.Interrupted(ctx.Err())
		}
		if r.Error != nil {
			return nil, r.Error
		}
		out = append(out, r.Result)
	}
	log.Info("Built %d thread trees over %d methods", len(out), methods.Len())
	return out, nil
}

// collectThreads interns every frame in input order, so method ids do not
// depend on worker scheduling.
func collectThreads(ctx context.Context, p *model.Profile, methods *jmethod.Table, opts CPUOptions) ([]*threadTree, error) {
	var trees []*threadTree
	byKey := make(map[string]*threadTree)
	keyOf := make(map[int]string, len(p.Threads))

	for _, ti := range p.SortedThreads() {
		name := ti.ThreadName
		if opts.GroupThreads {
			name = profiling.ExtractThreadGroup(name)
		}
		key := name
		if !opts.GroupThreads {
			key = name + "\x00" + strconv.Itoa(ti.TID)
		}
		keyOf[ti.TID] = key
		if _, ok := byKey[key]; !ok {
			t := &threadTree{id: ti.TID, name: name}
			byKey[key] = t
			trees = append(trees, t)
		}
	}

	for i, s := range p.Samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Interrupted(err)
			}
		}
		t, ok := byKey[keyOf[s.TID]]
		if !ok {
			continue
		}
		stack, hidden := internStack(methods, s.CallStack, opts)
		t.stacks = append(t.stacks, stack)
		t.hidden = append(t.hidden, hidden)
		t.weights = append(t.weights, s.Value)
	}
	return trees, nil
}

func internStack(methods *jmethod.Table, frames []string, opts CPUOptions) ([]int32, []bool) {
	stack := make([]int32, 0, len(frames))
	hidden := make([]bool, 0, len(frames))
	for _, frame := range frames {
		m := jmethod.ParseFrame(frame)
		h := (opts.HideJDK && filter.IsJDKClass(m.ClassName)) ||
			(!opts.Filter.IsEmpty() && !opts.Filter.Passes(m.FullName()))
		if h && len(hidden) > 0 && hidden[len(hidden)-1] {
			continue
		}
		stack = append(stack, methods.Intern(m))
		hidden = append(hidden, h)
	}
	return stack, hidden
}

func markHidden(root *cct.RuntimeNode, stack []int32, hidden []bool) {
	cur := root
	for i, id := range stack {
		cur = cur.Child(id)
		if hidden[i] {
			cur.Filtered = true
		}
	}
}
