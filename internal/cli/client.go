package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	AdminToken string
	HTTP       *http.Client
}

func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: strings.TrimSpace(adminToken),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Credential struct {
	PlayerID int64  `json:"player_id"`
	Password string `json:"password"`
}

// Units is a whole-unit amount per asset as accepted by the API.
type Units struct {
	Coin   int64 `json:"coin"`
	Food   int64 `json:"food"`
	Lumber int64 `json:"lumber"`
	Iron   int64 `json:"iron"`
}

type Ownership struct {
	PlayerID      int64    `json:"player_id"`
	OwnershipPerc *float64 `json:"ownership_perc,omitempty"`
	MonthlyCost   Units    `json:"monthly_cost"`
	Payed         Units    `json:"payed"`
}

func (c *Client) Month(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/month", false, nil, &out, "")
	return out, err
}

func (c *Client) MonthCycles(ctx context.Context, month int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/months/%d/cycles", month), false, nil, &out, "")
	return out, err
}

func (c *Client) ListPlayers(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/players", false, nil, &out, "")
	return out, err
}

func (c *Client) PlayerBalance(ctx context.Context, playerID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/players/%d/balance", playerID), false, nil, &out, "")
	return out, err
}

func (c *Client) PlayerExchanges(ctx context.Context, playerID int64, month *int64) (map[string]any, error) {
	path := fmt.Sprintf("/v1/players/%d/exchanges", playerID)
	if month != nil {
		path += "?month=" + url.QueryEscape(fmt.Sprint(*month))
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, false, nil, &out, "")
	return out, err
}

func (c *Client) ListFirmTypes(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/firm-types", false, nil, &out, "")
	return out, err
}

func (c *Client) ListFirms(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/firms", false, nil, &out, "")
	return out, err
}

func (c *Client) CreateFirm(ctx context.Context, auths []Credential, typeID int64, ownerships []Ownership, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/firms", false, map[string]any{
		"auth": auths,
		"data": map[string]any{
			"type_id":    typeID,
			"ownerships": ownerships,
		},
	}, &out, idem)
	return out, err
}

func (c *Client) UpgradeFirm(ctx context.Context, auths []Credential, firmID int64, ownerships []Ownership, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/firms/upgrade", false, map[string]any{
		"auth": auths,
		"data": map[string]any{
			"firm_id":    firmID,
			"ownerships": ownerships,
		},
	}, &out, idem)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, auths []Credential, senderID, receiverID int64, received Units, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/exchanges/transfer", false, map[string]any{
		"auth": auths,
		"data": map[string]any{
			"sender_id":   senderID,
			"receiver_id": receiverID,
			"received":    received,
		},
	}, &out, idem)
	return out, err
}

func (c *Client) AdminInit(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/init", true, nil, &out, "")
	return out, err
}

func (c *Client) AdminInitialExchange(ctx context.Context, balance *Units) (map[string]any, error) {
	body := map[string]any{}
	if balance != nil {
		body["balance"] = balance
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/initial-exchange", true, body, &out, "")
	return out, err
}

func (c *Client) AdminNextMonth(ctx context.Context, expectedMonth *int64) (map[string]any, error) {
	body := map[string]any{}
	if expectedMonth != nil {
		body["expected_month"] = *expectedMonth
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/next-month", true, body, &out, "")
	return out, err
}

func (c *Client) AdminCreatePlayer(ctx context.Context, name, password string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/players", true, map[string]any{
		"name":     name,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) AdminEnvConfig(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/env-config", true, nil, &out, "")
	return out, err
}

func (c *Client) AdminSetEnvConfig(ctx context.Context, key, value string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/admin/env-config/"+url.PathEscape(key), true, map[string]any{
		"value": value,
	}, &out, "")
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, admin bool, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

// Do sends a raw JSON request; used to replay queued mutations.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, false, in, &out, idem)
	return out, err
}
