package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	"github.com/vocalsense/vocalsense/internal/domain/capture"
)

// Client talks to the remote voice scoring service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// wire shape of the analyze response. Older service builds answer
// burnout_risk, newer ones risk_level; both are accepted.
type analyzeResponse struct {
	BurnoutRisk     string   `json:"burnout_risk"`
	RiskLevel       string   `json:"risk_level"`
	Score           *float64 `json:"score"`
	Recommendations []string `json:"recommendations"`
}

// Score submits the payload as multipart form data (single field "file")
// and validates the response shape. Non-2xx responses surface the body text
// as error detail.
func (c *Client) Score(ctx context.Context, p capture.AudioPayload) (analysis.ScoreResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	name := p.DisplayName
	if name == "" {
		name = "recording.wav"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return analysis.ScoreResult{}, err
	}
	if _, err := fw.Write(p.Data); err != nil {
		return analysis.ScoreResult{}, err
	}
	if err := mw.Close(); err != nil {
		return analysis.ScoreResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/analyze", &body)
	if err != nil {
		return analysis.ScoreResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return analysis.ScoreResult{}, fmt.Errorf("scoring service unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.ScoreResult{}, fmt.Errorf("reading scoring response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(raw))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return analysis.ScoreResult{}, fmt.Errorf("scoring service error: %d - %s", resp.StatusCode, detail)
	}

	var ar analyzeResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return analysis.ScoreResult{}, fmt.Errorf("malformed scoring response: %w", err)
	}
	wire := ar.BurnoutRisk
	if wire == "" {
		wire = ar.RiskLevel
	}
	level, err := analysis.ParseRiskLevel(wire)
	if err != nil {
		return analysis.ScoreResult{}, fmt.Errorf("malformed scoring response: %w (%q)", err, wire)
	}
	if ar.Score == nil {
		return analysis.ScoreResult{}, fmt.Errorf("malformed scoring response: missing score")
	}
	res := analysis.ScoreResult{
		RiskLevel:       level,
		Score:           *ar.Score,
		Recommendations: ar.Recommendations,
		Raw:             json.RawMessage(raw),
	}
	if err := res.Validate(); err != nil {
		return analysis.ScoreResult{}, fmt.Errorf("malformed scoring response: %w", err)
	}
	return res, nil
}

// Check probes GET /health. Advisory connectivity status only; it never
// gates submission.
func (c *Client) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scoring service not responding: %d", resp.StatusCode)
	}
	return nil
}
