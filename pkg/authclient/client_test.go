package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateUser_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/admin/users" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-key" {
			t.Errorf("expected bearer service key, got %q", got)
		}

		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if !req.EmailConfirm {
			t.Error("expected email_confirm to be set")
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(User{ID: "user-uuid-1", Email: req.Email})
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key")
	user, err := client.CreateUser(context.Background(), CreateUserRequest{
		Email:        "joao@test.com",
		Password:     "secret123",
		EmailConfirm: true,
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.ID != "user-uuid-1" {
		t.Fatalf("expected user id, got %q", user.ID)
	}
}

func TestCreateUser_MissingIDFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key")
	if _, err := client.CreateUser(context.Background(), CreateUserRequest{Email: "joao@test.com"}); err == nil {
		t.Fatal("expected error when response carries no user id")
	}
}

func TestFindUserByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"users": []User{{ID: "user-uuid-2", Email: "maria@test.com"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key")

	user, err := client.FindUserByEmail(context.Background(), "maria@test.com")
	if err != nil {
		t.Fatalf("FindUserByEmail returned error: %v", err)
	}
	if user == nil || user.ID != "user-uuid-2" {
		t.Fatalf("expected existing user, got %+v", user)
	}

	missing, err := client.FindUserByEmail(context.Background(), "nobody@test.com")
	if err != nil {
		t.Fatalf("FindUserByEmail returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown email, got %+v", missing)
	}
}
