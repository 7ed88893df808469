package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// --- Landmark service (/frame) ---
type LandmarkFrame struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Face      bool         `json:"face"`
	Landmarks [][2]float64 `json:"landmarks"`
	EOS       bool         `json:"eos,omitempty"`
}

// NextFrame fetches the landmarks of the next captured frame. It returns
// io.EOF once the service reports the end of the stream.
func (h *HTTP) NextFrame(ctx context.Context, url string) (*LandmarkFrame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/frame", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, io.EOF
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("landmarks %s: %s", resp.Status, string(body))
	}

	var out LandmarkFrame
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("landmarks decode: %w", err)
	}
	if out.EOS {
		return nil, io.EOF
	}
	return &out, nil
}
