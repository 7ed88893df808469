package clients

import (
	"context"
	"strings"
)

// --- Audio classifier (/classify) ---
type ClassifyReq struct {
	SampleRate int       `json:"sample_rate"`
	Waveform   []float32 `json:"waveform"`
}
type ClassifyResp struct {
	Scores []float32 `json:"scores"`
}

// Classify returns the per-class probabilities for one audio window.
func (h *HTTP) Classify(ctx context.Context, url string, window []float32, sampleRate int) ([]float32, error) {
	var out ClassifyResp
	err := h.postJSON(ctx, "classifier", strings.TrimRight(url, "/")+"/classify",
		ClassifyReq{SampleRate: sampleRate, Waveform: window}, &out)
	if err != nil {
		return nil, err
	}
	return out.Scores, nil
}

// Classifier binds the classifier service to one URL and sample rate so it
// can be handed to the audio estimator.
type Classifier struct {
	h          *HTTP
	url        string
	sampleRate int
}

func (h *HTTP) Classifier(url string, sampleRate int) *Classifier {
	return &Classifier{h: h, url: url, sampleRate: sampleRate}
}

func (c *Classifier) Classify(ctx context.Context, window []float32) ([]float32, error) {
	return c.h.Classify(ctx, c.url, window, c.sampleRate)
}
