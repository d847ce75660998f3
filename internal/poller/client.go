package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/appointment"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

// StatsClient reads the stats snapshot and issues staff commands against the API.
type StatsClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewStatsClient(baseURL, token string) *StatsClient {
	return &StatsClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *StatsClient) FetchStats(ctx context.Context) (alert.Stats, error) {
	var st alert.Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", &st); err != nil {
		return alert.Stats{}, err
	}
	return st, nil
}

// Acknowledge takes charge of an emergency on the server for every client.
func (c *StatsClient) Acknowledge(ctx context.Context, id string) (*appointment.Appointment, error) {
	var out appointment.Appointment
	if err := c.do(ctx, http.MethodPut, "/api/appointments/"+url.PathEscape(id)+"/acknowledge", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (c *StatsClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%w: %d %s: %s", ErrUnexpectedStatus, resp.StatusCode, apiErr.Error, apiErr.Details)
		}
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
