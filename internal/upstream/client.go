// Package upstream is the HTTP client for the ads platform API. It only
// knows how to build requests and parse responses; pacing, policy gating and
// error classification live in the governor, which is the sole caller.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the ads platform REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a Client for the given API base URL and access token.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// listEnvelope is the standard paged response shape.
type listEnvelope[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Subcode int    `json:"error_subcode"`
		Message string `json:"message"`
	} `json:"error"`
}

// Insights returns per-entity metrics for the account over [since, until).
func (c *Client) Insights(ctx context.Context, accountID string, since, until time.Time) ([]InsightRow, error) {
	q := url.Values{}
	q.Set("level", "entity")
	q.Set("since", since.Format(time.RFC3339))
	q.Set("until", until.Format(time.RFC3339))
	return list[InsightRow](ctx, c, fmt.Sprintf("/%s/insights", accountID), q)
}

// ListEntities returns the account's entities with their current budget
// state. When campaignIDs is non-empty the result is restricted to entities
// belonging to those campaigns.
func (c *Client) ListEntities(ctx context.Context, accountID string, campaignIDs []string) ([]Entity, error) {
	q := url.Values{}
	if len(campaignIDs) > 0 {
		q.Set("campaign_ids", strings.Join(campaignIDs, ","))
	}
	return list[Entity](ctx, c, fmt.Sprintf("/%s/entities", accountID), q)
}

// AccountSpend returns total account spend over [since, until].
func (c *Client) AccountSpend(ctx context.Context, accountID string, since, until time.Time) (float64, error) {
	return c.spend(ctx, accountID, nil, since, until)
}

// CampaignSpend returns summed spend for the given campaigns over [since, until].
func (c *Client) CampaignSpend(ctx context.Context, accountID string, campaignIDs []string, since, until time.Time) (float64, error) {
	return c.spend(ctx, accountID, campaignIDs, since, until)
}

func (c *Client) spend(ctx context.Context, accountID string, campaignIDs []string, since, until time.Time) (float64, error) {
	q := url.Values{}
	q.Set("since", since.Format("2006-01-02"))
	q.Set("until", until.Format("2006-01-02"))
	if len(campaignIDs) > 0 {
		q.Set("campaign_ids", strings.Join(campaignIDs, ","))
	}
	var out struct {
		Spend float64 `json:"spend"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s/spend", accountID), q, nil, &out); err != nil {
		return 0, err
	}
	return out.Spend, nil
}

// UpdateDailyBudget sets an entity's daily budget, in minor currency units.
func (c *Client) UpdateDailyBudget(ctx context.Context, entityID string, minorUnits int64) error {
	body := map[string]string{"daily_budget": strconv.FormatInt(minorUnits, 10)}
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/entities/%s", entityID), nil, body, &out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{HTTPStatus: http.StatusOK, Message: "update not acknowledged"}
	}
	return nil
}

// list fetches a paged collection, following paging.next until exhausted.
func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var all []T
	next := c.baseURL + path + "?" + q.Encode()
	for next != "" {
		var page listEnvelope[T]
		if err := c.doURL(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		next = page.Paging.Next
	}
	return all, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.doURL(ctx, method, u, body, out)
}

func (c *Client) doURL(ctx context.Context, method, u string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("reading upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env errorEnvelope
		if jsonErr := json.Unmarshal(data, &env); jsonErr == nil && (env.Error.Code != 0 || env.Error.Message != "") {
			return &APIError{
				HTTPStatus: resp.StatusCode,
				Code:       env.Error.Code,
				Subcode:    env.Error.Subcode,
				Message:    env.Error.Message,
			}
		}
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding upstream response: %w", err)
		}
	}
	return nil
}
