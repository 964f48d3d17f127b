// Package datasource is the upstream analytics query seam for C7's
// compute-on-miss step. The real analytics system (Synapse in the
// original implementation) is explicitly out of scope (§1 Non-goals); this
// is a stand-in that lets the rest of the pipeline be exercised end to end.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/pipeline"
)

// Static implements pipeline.DataSource with a fixed sample dataset shaped
// like a typical tabular report, so templates have something real to
// iterate over.
type Static struct{}

func New() *Static { return &Static{} }

func (s *Static) Fetch(ctx context.Context, querySpec map[string]any, window pipeline.Range) (map[string]any, error) {
	return map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"range_type":   window.RangeType,
		"range_start":  window.Start.Format(time.RFC3339),
		"range_end":    window.End.Format(time.RFC3339),
		"rows": []map[string]any{
			{"label": "Product A", "quantity": 100, "revenue": 10000},
			{"label": "Product B", "quantity": 50, "revenue": 5000},
			{"label": "Product C", "quantity": 75, "revenue": 7500},
		},
		"total_quantity": 225,
		"total_revenue":  22500,
		"query_spec":     fmt.Sprintf("%v", querySpec),
	}, nil
}
