package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type forwardPayload struct {
	VehicleID string    `json:"vehicleId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTPForwarder posts every fix to one downstream collector.
// The response is only looked at to decide whether the send failed.
type HTTPForwarder struct {
	url        string
	httpClient *http.Client
}

func NewHTTPForwarder(url string, timeout time.Duration) *HTTPForwarder {
	return &HTTPForwarder{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPForwarder) Name() string { return "forward" }

func (f *HTTPForwarder) Send(ctx context.Context, fix LocationFix) error {
	body, err := json.Marshal(forwardPayload{
		VehicleID: fix.VehicleID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Timestamp: fix.Timestamp,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("forward http status: %d", resp.StatusCode)
	}
	return nil
}

func (f *HTTPForwarder) Close() error {
	f.httpClient.CloseIdleConnections()
	return nil
}
