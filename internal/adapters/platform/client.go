// Package platform implements the outbound HTTP client for the external
// batch-job execution platform. The platform owns scheduling and execution
// of scraping work; this client only reads run state and dataset pages and
// relays resurrect/abort requests.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/audiencelab/scrapewatch/internal/core"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

// maxErrorBodyBytes caps how much of an error response body is retained
// for diagnostics.
const maxErrorBodyBytes = 4 * 1024

// ClientOptions configures the platform client.
type ClientOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the platform's REST API. It is stateless and safe for
// concurrent use; construct one per process and inject it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

var _ core.PlatformClient = (*Client)(nil)

// NewClient constructs a platform client. A missing token is a
// configuration error detected eagerly, not at first call.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, apperrors.Config("platform base URL is required")
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, apperrors.Config("platform API token is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    hc,
		logger:  logger,
	}, nil
}

// runEnvelope mirrors the platform's run resource wrapper.
type runEnvelope struct {
	Data struct {
		Status        string     `json:"status"`
		StatusMessage string     `json:"statusMessage"`
		StartedAt     *time.Time `json:"startedAt"`
		FinishedAt    *time.Time `json:"finishedAt"`
		DatasetID     string     `json:"defaultDatasetId"`
		Stats         struct {
			ItemCount int `json:"itemCount"`
		} `json:"stats"`
	} `json:"data"`
}

// GetStatus fetches the platform's current view of one run.
func (c *Client) GetStatus(ctx context.Context, externalJobID string) (*core.ExternalRunStatus, error) {
	var envelope runEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/v2/runs/"+url.PathEscape(externalJobID), &envelope); err != nil {
		return nil, err
	}

	return &core.ExternalRunStatus{
		Status:       envelope.Data.Status,
		ItemCount:    envelope.Data.Stats.ItemCount,
		StartedAt:    envelope.Data.StartedAt,
		FinishedAt:   envelope.Data.FinishedAt,
		ErrorMessage: envelope.Data.StatusMessage,
		DatasetRef:   envelope.Data.DatasetID,
	}, nil
}

// listEnvelope mirrors the platform's dataset listing wrapper.
type listEnvelope struct {
	Data struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	} `json:"data"`
}

// ListItems fetches one page of a run's result dataset.
func (c *Client) ListItems(ctx context.Context, params core.ListItemsParams) (*core.DatasetPage, error) {
	if strings.TrimSpace(params.DatasetRef) == "" {
		return nil, apperrors.Validation("dataset ref is required")
	}

	q := url.Values{}
	q.Set("offset", strconv.Itoa(params.Offset))
	q.Set("limit", strconv.Itoa(params.Limit))
	path := "/v2/datasets/" + url.PathEscape(params.DatasetRef) + "/items?" + q.Encode()

	var envelope listEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, &envelope); err != nil {
		return nil, err
	}

	return &core.DatasetPage{
		Items: envelope.Data.Items,
		Total: envelope.Data.Total,
	}, nil
}

// Resurrect asks the platform to resume a terminal run and returns the new
// external status.
func (c *Client) Resurrect(ctx context.Context, externalJobID string) (string, error) {
	var envelope runEnvelope
	path := "/v2/runs/" + url.PathEscape(externalJobID) + "/resurrect"
	if err := c.doJSON(ctx, http.MethodPost, path, &envelope); err != nil {
		return "", err
	}
	return envelope.Data.Status, nil
}

// Abort relays an abort request and returns the new external status.
func (c *Client) Abort(ctx context.Context, externalJobID string) (string, error) {
	var envelope runEnvelope
	path := "/v2/runs/" + url.PathEscape(externalJobID) + "/abort"
	if err := c.doJSON(ctx, http.MethodPost, path, &envelope); err != nil {
		return "", err
	}
	return envelope.Data.Status, nil
}

// doJSON performs one API call and decodes the response into out. All
// failures come back as external AppErrors so the orchestrator can treat
// them as retry-next-tick.
func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build platform request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeExternal, "platform %s %s", method, path)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "close platform response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NotFoundf("platform resource not found: %s", path)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := readErrorBody(resp.Body)
		return apperrors.Externalf("platform %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return apperrors.Wrapf(decodeErr, apperrors.ErrCodeExternal, "decode platform response %s", path)
	}
	return nil
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(data) == 0 {
		return "(no body)"
	}
	return strings.TrimSpace(string(data))
}

// String implements fmt.Stringer without exposing the token.
func (c *Client) String() string {
	return fmt.Sprintf("platform.Client(%s)", c.baseURL)
}
