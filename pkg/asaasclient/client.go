/**
 * @description
 * This package provides a client for interacting with the Asaas payment
 * gateway API. It encapsulates the logic for making authenticated HTTP
 * requests to Asaas' endpoints, handling request body construction, and
 * parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 */
package asaasclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

// Client is a client for the Asaas API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Asaas API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCustomerRequest is the payload for creating an Asaas customer.
type CreateCustomerRequest struct {
	Name                 string `json:"name"`
	CpfCnpj              string `json:"cpfCnpj"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	MobilePhone          string `json:"mobilePhone"`
	Address              string `json:"address"`
	AddressNumber        string `json:"addressNumber"`
	Complement           string `json:"complement,omitempty"`
	Province             string `json:"province"`
	PostalCode           string `json:"postalCode"`
	City                 string `json:"city"`
	State                string `json:"state"`
	Country              string `json:"country"`
	ExternalReference    string `json:"externalReference"`
	NotificationDisabled bool   `json:"notificationDisabled"`
}

// CustomerResponse is the customer resource returned by Asaas.
type CustomerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreditCard carries raw card fields forwarded to the gateway.
type CreditCard struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

// CreditCardHolderInfo carries the cardholder identity Asaas requires for
// card charges.
type CreditCardHolderInfo struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	CpfCnpj           string `json:"cpfCnpj"`
	PostalCode        string `json:"postalCode"`
	AddressNumber     string `json:"addressNumber"`
	AddressComplement string `json:"addressComplement,omitempty"`
	Phone             string `json:"phone"`
	MobilePhone       string `json:"mobilePhone"`
}

// CreatePaymentRequest is the payload for creating an Asaas charge.
type CreatePaymentRequest struct {
	Customer             string                `json:"customer"`
	BillingType          string                `json:"billingType"`
	Value                float64               `json:"value"`
	DueDate              string                `json:"dueDate"`
	Description          string                `json:"description"`
	ExternalReference    string                `json:"externalReference"`
	CreditCard           *CreditCard           `json:"creditCard,omitempty"`
	CreditCardHolderInfo *CreditCardHolderInfo `json:"creditCardHolderInfo,omitempty"`
}

// PaymentResponse is the charge resource returned by Asaas.
type PaymentResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Value  float64 `json:"value"`
}

// ErrorResponse represents an error from the Asaas API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("asaas api error: %s - %s", e.Errors[0].Code, e.Errors[0].Description)
	}
	return fmt.Sprintf("unknown asaas api error (status %d)", e.StatusCode)
}

// CreateCustomer creates a new customer at the gateway and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*CustomerResponse, error) {
	var resp CustomerResponse
	if err := c.do(ctx, http.MethodPost, "/customers", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreatePayment creates a new charge for a customer and returns it.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error) {
	var resp PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPayment reads a charge by id. The poller calls this once per iteration.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.Charge, error) {
	var resp PaymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.Charge{
		ID:     resp.ID,
		Status: domain.ChargeStatus(resp.Status),
		Value:  resp.Value,
	}, nil
}

// do executes one request against the Asaas API and decodes the response
// into out. Non-2xx responses are returned as *ErrorResponse.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("access_token", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=asaas_client op=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
			return fmt.Errorf("asaas request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode success response: %w", err)
		}
	}
	return nil
}
