package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/ledger"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type BalanceRow struct {
	UserID      int64   `json:"user_id"`
	Balance     float64 `json:"balance"`
	DisplayName string  `json:"display_name"`
}

type GamesRow struct {
	UserID      int64  `json:"user_id"`
	Games       int64  `json:"games"`
	DisplayName string `json:"display_name"`
}

type SplitResult struct {
	Total                 float64 `json:"total"`
	Share                 float64 `json:"share"`
	Adjusted              []int64 `json:"adjusted"`
	NothingToRedistribute bool    `json:"nothing_to_redistribute"`
}

func (c *Client) EnsureUser(ctx context.Context, userID int64) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/users/"+formatID(userID), nil, nil, "")
}

func (c *Client) Balance(ctx context.Context, userID int64) (BalanceRow, error) {
	var out BalanceRow
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/users/"+formatID(userID)+"/balance", nil, &out, "")
	return out, err
}

func (c *Client) Adjust(ctx context.Context, userID int64, delta float64, reason, idem string) (BalanceRow, error) {
	var out BalanceRow
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users/"+formatID(userID)+"/adjust", map[string]any{
		"delta":  delta,
		"reason": reason,
	}, &out, idem)
	return out, err
}

func (c *Client) RecordGame(ctx context.Context, userID int64) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/users/"+formatID(userID)+"/games", nil, nil, "")
}

func (c *Client) GameCount(ctx context.Context, userID int64) (GamesRow, error) {
	var out GamesRow
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/users/"+formatID(userID)+"/games/count", nil, &out, "")
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]BalanceRow, error) {
	var out struct {
		Rows []BalanceRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard?limit="+strconv.Itoa(limit), nil, &out, "")
	return out.Rows, err
}

func (c *Client) GamesLeaderboard(ctx context.Context, limit int) ([]GamesRow, error) {
	var out struct {
		Rows []GamesRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard/games?limit="+strconv.Itoa(limit), nil, &out, "")
	return out.Rows, err
}

func (c *Client) Excess(ctx context.Context) (float64, error) {
	var out struct {
		Total float64 `json:"total"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/excess", nil, &out, "")
	return out.Total, err
}

func (c *Client) SplitExcess(ctx context.Context, targets []int64) (SplitResult, error) {
	var out SplitResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/excess/split", map[string]any{
		"targets": targets,
	}, &out, "")
	return out, err
}

func (c *Client) History(ctx context.Context, userIDs []int64) ([]ledger.UserHistory, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, formatID(id))
	}
	var out struct {
		Users []ledger.UserHistory `json:"users"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/history?users="+strings.Join(ids, ","), nil, &out, "")
	return out.Users, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any, out any, idem string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else if method == http.MethodPost {
		reader = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
