// Package execution renders stored execution records through size-bounded views.
package execution

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/flowguard/pkg/models"
)

var ErrInvalidMode = errors.New("invalid execution view mode")

// Mode selects how much of an execution payload a view carries.
type Mode string

const (
	// ModePreview carries node names, item counts and statuses only.
	ModePreview Mode = "preview"
	// ModeSummary is preview plus up to DefaultSampleSize items per node.
	ModeSummary Mode = "summary"
	// ModeFiltered applies the caller's node names and item limit.
	ModeFiltered Mode = "filtered"
	// ModeFull carries the whole stored payload. Its size is unbounded.
	ModeFull Mode = "full"
)

// DefaultSampleSize is the number of items per node in summary views.
const DefaultSampleSize = 2

// ParseMode validates a view mode. An empty mode is summary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeSummary, nil
	case ModePreview, ModeSummary, ModeFiltered, ModeFull:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q (allowed: preview, summary, filtered, full)", ErrInvalidMode, s)
	}
}

// ViewOptions narrows filtered views. They are ignored by the other modes.
type ViewOptions struct {
	NodeNames  []string `json:"node_names,omitempty"`  // Empty means every node
	ItemsLimit int      `json:"items_limit,omitempty"` // Zero means DefaultSampleSize, negative means every item
}

// NodeView is one node run inside a view.
type NodeView struct {
	Name            string            `json:"name"`
	Status          models.NodeStatus `json:"status"`
	Error           string            `json:"error,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	ItemCount       int               `json:"item_count"`
	Items           []map[string]any  `json:"items,omitempty"`
	Truncated       bool              `json:"truncated,omitempty"` // Items holds fewer than ItemCount entries
}

// View is the rendered form of an execution.
type View struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	Status       models.ExecutionStatus `json:"status"`
	Mode         string                 `json:"mode,omitempty"`
	ViewMode     Mode                   `json:"view_mode"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	DurationMs   int64                  `json:"duration_ms,omitempty"`
	TotalItems   int                    `json:"total_items"`
	Nodes        []NodeView             `json:"nodes"`
	MissingNodes []string               `json:"missing_nodes,omitempty"` // Requested by a filtered view but absent
}

// Render builds the view of an execution. The execution is never modified and the view shares no
// item maps with it.
func Render(execution *models.Execution, mode Mode, opts ViewOptions) (*View, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	view := &View{
		ID:         execution.ID,
		WorkflowID: execution.WorkflowID,
		Status:     execution.Status,
		Mode:       execution.Mode,
		ViewMode:   mode,
		StartedAt:  execution.StartedAt,
		FinishedAt: execution.FinishedAt,
		Nodes:      make([]NodeView, 0, len(execution.NodeRuns)),
	}

	if execution.FinishedAt != nil {
		view.DurationMs = execution.FinishedAt.Sub(execution.StartedAt).Milliseconds()
	}

	limit := itemsLimit(mode, opts)
	seen := make(map[string]bool, len(execution.NodeRuns))

	for _, run := range execution.NodeRuns {
		view.TotalItems += len(run.Items)
		seen[run.NodeName] = true

		if mode == ModeFiltered && len(opts.NodeNames) > 0 && !slices.Contains(opts.NodeNames, run.NodeName) {
			continue
		}

		view.Nodes = append(view.Nodes, renderNode(run, limit))
	}

	if mode == ModeFiltered {
		for _, name := range opts.NodeNames {
			if !seen[name] {
				view.MissingNodes = append(view.MissingNodes, name)
			}
		}
	}

	return view, nil
}

// itemsLimit returns the number of items per node the mode carries; negative means all.
func itemsLimit(mode Mode, opts ViewOptions) int {
	switch mode {
	case ModePreview:
		return 0
	case ModeSummary:
		return DefaultSampleSize
	case ModeFiltered:
		if opts.ItemsLimit == 0 {
			return DefaultSampleSize
		}

		return opts.ItemsLimit
	default:
		return -1
	}
}

func renderNode(run models.NodeRun, limit int) NodeView {
	node := NodeView{
		Name:            run.NodeName,
		Status:          run.Status,
		Error:           run.Error,
		ExecutionTimeMs: run.ExecutionTimeMs,
		ItemCount:       len(run.Items),
	}

	n := len(run.Items)
	if limit >= 0 && limit < n {
		n = limit
		node.Truncated = true
	}

	if n > 0 {
		node.Items = make([]map[string]any, n)
		for i := range n {
			node.Items[i] = models.CloneMap(run.Items[i])
		}
	}

	return node
}
