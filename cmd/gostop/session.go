package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jason-s-yu/gostop/internal/handlers"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// newSession asks the server for an anonymous identity.
func newSession(ctx context.Context, baseURL, name string) (handlers.SessionResponse, error) {
	var sess handlers.SessionResponse
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return sess, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return sess, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return sess, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return sess, fmt.Errorf("create session: unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return sess, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}
