package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/talka-ai/talka-backend/internal/config"
)

// Sync job discriminators accepted by the smb_app_data endpoint
const (
	SyncTypeContacts = "smb_app_state_sync"
	SyncTypeHistory  = "history"
)

// GraphPhoneNumber is a phone number record returned by the Graph API
type GraphPhoneNumber struct {
	ID                     string `json:"id"`
	DisplayPhoneNumber     string `json:"display_phone_number"`
	VerifiedName           string `json:"verified_name"`
	CodeVerificationStatus string `json:"code_verification_status,omitempty"`
}

// GraphClient talks to the WhatsApp Cloud API. It is the only component that
// holds the OAuth app secret, acting as the server-side token-exchange proxy
// for the consent widget.
type GraphClient struct {
	baseURL    string
	apiVersion string
	appID      string
	appSecret  string
	client     *http.Client
}

// NewGraphClient creates a new Graph API client
func NewGraphClient(cfg config.Graph) *GraphClient {
	return &GraphClient{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (g *GraphClient) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", g.baseURL, g.apiVersion, path)
}

// ExchangeCode exchanges a one-time OAuth grant code for an access token.
func (g *GraphClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	params := url.Values{}
	params.Set("client_id", g.appID)
	params.Set("client_secret", g.appSecret)
	params.Set("code", code)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := g.do(ctx, http.MethodGet, g.endpoint("oauth/access_token")+"?"+params.Encode(), "", nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("missing access_token in token exchange response")
	}
	return out.AccessToken, nil
}

// RegisterPhone registers a fresh phone number with a two-step verification PIN.
func (g *GraphClient) RegisterPhone(ctx context.Context, phoneNumberID, pin, accessToken string) error {
	body := map[string]string{
		"messaging_product": "whatsapp",
		"pin":               pin,
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := g.do(ctx, http.MethodPost, g.endpoint(phoneNumberID+"/register"), accessToken, body, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("phone registration was not accepted by the platform")
	}
	return nil
}

// SubscribeApp subscribes the application to the business account's event feed.
// A response without a success flag is treated as a failure; the platform
// contract does not say whether "already subscribed" reports success, so no
// special case is made for it.
func (g *GraphClient) SubscribeApp(ctx context.Context, wabaID, accessToken string) error {
	body := map[string]string{
		"access_token": accessToken,
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := g.do(ctx, http.MethodPost, g.endpoint(wabaID+"/subscribed_apps"), accessToken, body, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("subscription was not accepted by the platform")
	}
	return nil
}

// ListPhoneNumbers fetches the phone numbers attached to a business account.
func (g *GraphClient) ListPhoneNumbers(ctx context.Context, wabaID, accessToken string) ([]GraphPhoneNumber, error) {
	endpoint := g.endpoint(wabaID+"/phone_numbers") + "?fields=id,display_phone_number,verified_name,code_verification_status"

	var out struct {
		Data []GraphPhoneNumber `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, endpoint, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetPhoneNumber fetches display details for one phone number (used on the
// imported branch, where the user never picks a number by hand).
func (g *GraphClient) GetPhoneNumber(ctx context.Context, phoneNumberID, accessToken string) (*GraphPhoneNumber, error) {
	endpoint := g.endpoint(phoneNumberID) + "?fields=display_phone_number,verified_name"

	var out GraphPhoneNumber
	if err := g.do(ctx, http.MethodGet, endpoint, accessToken, nil, &out); err != nil {
		return nil, err
	}
	if out.DisplayPhoneNumber == "" {
		return nil, fmt.Errorf("missing display_phone_number in response")
	}
	return &out, nil
}

// RequestSync asks the platform to start a data-sync job for an imported
// business app. The job completes out-of-band; only the request id is returned.
func (g *GraphClient) RequestSync(ctx context.Context, phoneNumberID, accessToken, syncType string) (string, error) {
	body := map[string]string{
		"messaging_product": "whatsapp",
		"sync_type":         syncType,
	}

	var out struct {
		MessagingProduct string `json:"messaging_product"`
		RequestID        string `json:"request_id"`
	}
	if err := g.do(ctx, http.MethodPost, g.endpoint(phoneNumberID+"/smb_app_data"), accessToken, body, &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("missing request_id in sync response")
	}
	return out.RequestID, nil
}

func (g *GraphClient) do(ctx context.Context, method, endpoint, accessToken string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(raw))
	}
	return nil
}
