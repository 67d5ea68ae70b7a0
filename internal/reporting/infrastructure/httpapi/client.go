package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nmalhotra/orderflow/internal/reporting/application"
)

// Client is the HTTP side of the reporting protocol: submit a report, then
// confirm it with the verification id the provider returned.
type Client struct {
	http       *http.Client
	reportURL  string
	confirmURL string
}

func NewClient(reportURL, confirmURL string, timeout time.Duration) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		reportURL:  reportURL,
		confirmURL: confirmURL,
	}
}

type submitResponse struct {
	VerificationID string `json:"verification_id"`
}

func (c *Client) Submit(ctx context.Context, rep application.Report) (string, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	resp, err := c.post(ctx, c.reportURL, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("report endpoint status %d", resp.StatusCode)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode report response: %w", err)
	}
	if out.VerificationID == "" {
		return "", fmt.Errorf("report endpoint returned no verification id")
	}
	return out.VerificationID, nil
}

func (c *Client) Confirm(ctx context.Context, verificationID string) error {
	body, err := json.Marshal(map[string]string{"verification_id": verificationID})
	if err != nil {
		return fmt.Errorf("encode confirmation: %w", err)
	}
	resp, err := c.post(ctx, c.confirmURL, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm endpoint status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}
