package asaasclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

func TestCreateCustomer_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/customers" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("access_token"); got != "test-key" {
			t.Errorf("expected access_token header, got %q", got)
		}

		var req CreateCustomerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.CpfCnpj != "11144477735" {
			t.Errorf("expected cpf forwarded, got %q", req.CpfCnpj)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(CustomerResponse{ID: "cus_000001", Name: req.Name})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.CreateCustomer(context.Background(), CreateCustomerRequest{
		Name:    "João da Silva",
		CpfCnpj: "11144477735",
		Email:   "joao@test.com",
	})
	if err != nil {
		t.Fatalf("CreateCustomer returned error: %v", err)
	}
	if resp.ID != "cus_000001" {
		t.Fatalf("expected customer id cus_000001, got %q", resp.ID)
	}
}

func TestCreatePayment_DecodesTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":"invalid_creditCard","description":"Cartão recusado"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{Customer: "cus_000001"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ErrorResponse, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Errors[0].Code != "invalid_creditCard" {
		t.Fatalf("unexpected error code %q", apiErr.Errors[0].Code)
	}
}

func TestGetPayment_MapsChargeStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(PaymentResponse{ID: "pay_123", Status: "CONFIRMED", Value: 25})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	charge, err := client.GetPayment(context.Background(), "pay_123")
	if err != nil {
		t.Fatalf("GetPayment returned error: %v", err)
	}
	if charge.Status != domain.ChargeConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", charge.Status)
	}
	if charge.Value != 25 {
		t.Fatalf("expected value 25, got %f", charge.Value)
	}
}

func TestGetPayment_UnparsableErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.GetPayment(context.Background(), "pay_123")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *ErrorResponse
	if errors.As(err, &apiErr) {
		t.Fatalf("expected plain error for unparsable body, got typed %v", apiErr)
	}
}
