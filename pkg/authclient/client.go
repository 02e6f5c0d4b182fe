/**
 * @description
 * This package provides a client for the Supabase Auth (GoTrue) admin API.
 * It is used by the orchestrator and the reconciliation sweep to provision
 * member accounts after payment has been confirmed, and to look up accounts
 * by email during reconciliation.
 */
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a client for the Supabase Auth admin API.
type Client struct {
	BaseURL    string
	ServiceKey string
	HTTPClient *http.Client
}

// NewClient creates a new auth admin client. baseURL is the Supabase project
// URL; the auth endpoints live under /auth/v1.
func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// UserMetadata is the free-form metadata attached to a created account.
type UserMetadata struct {
	Nome                string `json:"nome,omitempty"`
	CPF                 string `json:"cpf,omitempty"`
	Telefone            string `json:"telefone,omitempty"`
	TipoMembro          string `json:"tipo_membro,omitempty"`
	FlowVersion         string `json:"registration_flow_version,omitempty"`
	MigratedFromOldFlow bool   `json:"migrated_from_old_flow,omitempty"`
}

// CreateUserRequest is the admin create-user payload.
type CreateUserRequest struct {
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	EmailConfirm bool         `json:"email_confirm"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

// User is the auth account resource.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateUser provisions a new auth account. It is only called after payment
// has been confirmed.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create-user request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/v1/admin/users", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send create-user request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.handleErrorResponse(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode create-user response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("account was not created - user data missing")
	}
	return &user, nil
}

// FindUserByEmail looks up an existing auth account. A nil user with nil
// error means no account exists for that email.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	endpoint := c.BaseURL + "/auth/v1/admin/users?page=1&per_page=1&filter=" + url.QueryEscape(email)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send user lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var page struct {
		Users []User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode user lookup response: %w", err)
	}

	for _, u := range page.Users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("auth admin API error with status %d, but failed to read response body", resp.StatusCode)
	}
	return fmt.Errorf("auth admin API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
}
