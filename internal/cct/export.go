package cct

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/perf-snapshot/pkg/errors"
)

// Format names an export format.
type Format string

// Supported export formats.
const (
	FormatXML  Format = "xml"
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
)

// CSVOptions configure ExportCSV.
type CSVOptions struct {
	Separator string
	Quote     string
	LineEnd   string
}

// DefaultCSVOptions returns comma separated, double quoted, CRLF terminated rows.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Separator: ",", Quote: "\"", LineEnd: "\r\n"}
}

// Export writes the subtree under root in the given format.
func Export(ctx context.Context, root *BackedNode, format Format, w io.Writer) error {
	switch format {
	case FormatXML:
		return ExportXML(ctx, root, w)
	case FormatHTML:
		return ExportHTML(ctx, root, w)
	case FormatCSV:
		return ExportCSV(ctx, root, w, DefaultCSVOptions())
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// walk visits the subtree pre-order. Children that were never requested are
// computed into a temporary slice and dropped afterwards, so exporting leaves
// every node's lazy state exactly as it was.
func walk(ctx context.Context, n *BackedNode, depth int, enter func(*BackedNode, int) error, leave func(*BackedNode, int) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Interrupted(err)
	}
	if err := enter(n, depth); err != nil {
		return err
	}
	children := n.children
	if children == nil {
		var err error
		if children, err = n.computeChildren(ctx); err != nil {
			return err
		}
	}
	for _, ch := range children {
		if err := walk(ctx, ch, depth+1, enter, leave); err != nil {
			return err
		}
	}
	if leave != nil {
		return leave(n, depth)
	}
	return nil
}

func parentName(n *BackedNode) string {
	if n.parent == nil {
		return "none"
	}
	return n.parent.Name()
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

// ExportXML writes nested <Node> elements with Name, Parent, Time_Relative,
// Time, Time-CPU (two-timestamp trees only) and Invocations.
func ExportXML(ctx context.Context, root *BackedNode, w io.Writer) error {
	bw := bufio.NewWriter(w)
	twoStamps := root.container.CollectingTwoTimeStamps()

	bw.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	bw.WriteString("<Tree>\n")
	err := walk(ctx, root, 1,
		func(n *BackedNode, depth int) error {
			indent := strings.Repeat(" ", depth)
			fmt.Fprintf(bw, "%s<Node>\n", indent)
			fmt.Fprintf(bw, "%s <Name>%s</Name>\n", indent, html.EscapeString(n.Name()))
			fmt.Fprintf(bw, "%s <Parent>%s</Parent>\n", indent, html.EscapeString(parentName(n)))
			fmt.Fprintf(bw, "%s <Time_Relative>%s</Time_Relative>\n", indent, percent(n.TotalTimeInPercent()))
			fmt.Fprintf(bw, "%s <Time>%d</Time>\n", indent, n.TotalTime0())
			if twoStamps {
				fmt.Fprintf(bw, "%s <Time-CPU>%d</Time-CPU>\n", indent, n.TotalTime1())
			}
			fmt.Fprintf(bw, "%s <Invocations>%d</Invocations>\n", indent, n.NCalls())
			return nil
		},
		func(n *BackedNode, depth int) error {
			_, err := fmt.Fprintf(bw, "%s</Node>\n", strings.Repeat(" ", depth))
			return err
		},
	)
	if err != nil {
		return err
	}
	bw.WriteString("</Tree>\n")
	return bw.Flush()
}

// ExportHTML writes a table with one row per node, indented by depth.
func ExportHTML(ctx context.Context, root *BackedNode, w io.Writer) error {
	bw := bufio.NewWriter(w)
	twoStamps := root.container.CollectingTwoTimeStamps()

	bw.WriteString("<html><head><meta charset=\"UTF-8\"><title>Call Tree</title></head><body><table border=\"1\">\n")
	bw.WriteString("<tr><th>Method</th><th>Time [%]</th><th>Time</th>")
	if twoStamps {
		bw.WriteString("<th>Time (CPU)</th>")
	}
	bw.WriteString("<th>Invocations</th></tr>\n")

	err := walk(ctx, root, 0,
		func(n *BackedNode, depth int) error {
			fmt.Fprintf(bw, "<tr><td class=\"method\"><pre class=\"method\">%s%s</pre></td>",
				strings.Repeat(".", depth), html.EscapeString(n.Name()))
			fmt.Fprintf(bw, "<td class=\"right\">%s</td><td class=\"right\">%d</td>", percent(n.TotalTimeInPercent()), n.TotalTime0())
			if twoStamps {
				fmt.Fprintf(bw, "<td class=\"right\">%d</td>", n.TotalTime1())
			}
			_, err := fmt.Fprintf(bw, "<td class=\"right\">%d</td></tr>\n", n.NCalls())
			return err
		}, nil)
	if err != nil {
		return err
	}
	bw.WriteString("</table></body></html>\n")
	return bw.Flush()
}

// ExportCSV writes a header and one row per node; the name column is
// prefixed with one space per depth level.
func ExportCSV(ctx context.Context, root *BackedNode, w io.Writer, opts CSVOptions) error {
	bw := bufio.NewWriter(w)
	twoStamps := root.container.CollectingTwoTimeStamps()
	q, sep := opts.Quote, opts.Separator

	cell := func(s string) string {
		if q != "" {
			s = strings.ReplaceAll(s, q, q+q)
		}
		return q + s + q
	}
	row := func(cells ...string) {
		for i, c := range cells {
			if i > 0 {
				bw.WriteString(sep)
			}
			bw.WriteString(cell(c))
		}
		bw.WriteString(opts.LineEnd)
	}

	header := []string{"Name", "Time Relative", "Time"}
	if twoStamps {
		header = append(header, "Time-CPU")
	}
	row(append(header, "Invocations")...)

	err := walk(ctx, root, 0,
		func(n *BackedNode, depth int) error {
			cells := []string{
				strings.Repeat(" ", depth) + n.Name(),
				percent(n.TotalTimeInPercent()),
				strconv.FormatInt(n.TotalTime0(), 10),
			}
			if twoStamps {
				cells = append(cells, strconv.FormatInt(n.TotalTime1(), 10))
			}
			row(append(cells, strconv.FormatInt(n.NCalls(), 10))...)
			return nil
		}, nil)
	if err != nil {
		return err
	}
	return bw.Flush()
}
