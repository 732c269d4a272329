package csd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const timestampLayout = "2006-01-02T15:04:05Z07:00"

func newJSONRequest(ctx context.Context, endpoint, name string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s reconciliation failed: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s reconciliation failed: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doJSON sends req and decodes a 200 response into out. Any other status is
// reported as "<name> API error: <code>".
func doJSON(client *http.Client, req *http.Request, name string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s reconciliation failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s API error: %d", name, resp.StatusCode)
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s reconciliation failed: decode response: %w", name, err)
	}
	return nil
}
