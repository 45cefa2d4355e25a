package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// OfferAPI answers offers on behalf of technicians.
type OfferAPI interface {
	Accept(ctx context.Context, offerID, technicianID string) error
	Reject(ctx context.Context, offerID, technicianID, reason string) error
}

// HTTPClient calls the homefix offer endpoints.
type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient targets the API at base, e.g. http://localhost:8080.
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{base: strings.TrimSuffix(base, "/"), http: &http.Client{Timeout: 5 * time.Second}}
}

// AuthConfig holds OAuth2 client credentials for an API gateway in front
// of homefix.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// WithClientCredentials makes every request carry a bearer token fetched
// and refreshed through the client credentials flow.
func (c *HTTPClient) WithClientCredentials(ctx context.Context, auth AuthConfig) *HTTPClient {
	cc := clientcredentials.Config{ClientID: auth.ClientID, ClientSecret: auth.ClientSecret, TokenURL: auth.TokenURL}
	cli := cc.Client(ctx)
	cli.Timeout = c.http.Timeout
	c.http = cli
	return c
}

func (c *HTTPClient) Accept(ctx context.Context, offerID, technicianID string) error {
	return c.post(ctx, "/api/offers/"+offerID+"/accept", map[string]string{"technicianId": technicianID})
}

func (c *HTTPClient) Reject(ctx context.Context, offerID, technicianID, reason string) error {
	return c.post(ctx, "/api/offers/"+offerID+"/reject", map[string]string{"technicianId": technicianID, "reason": reason})
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, e.Code)
	}
	return nil
}
