package clients

import (
	"context"
	"strings"
)

// --- Visualization (/generate-timeline) ---
type TimelineReq struct {
	RunID        string    `json:"run_id"`
	ExperimentID int64     `json:"experiment_id"`
	VideoIDs     []string  `json:"video_ids"`
	Scores       []float64 `json:"scores"`
	Total        float64   `json:"total"`
	OutputDir    string    `json:"output_dir,omitempty"`
}

type TimelineResp struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

func (h *HTTP) GenerateTimeline(ctx context.Context, url string, req TimelineReq) (*TimelineResp, error) {
	var out TimelineResp
	if err := h.postJSON(ctx, "viz timeline", strings.TrimRight(url, "/")+"/generate-timeline", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
