package e2e

import (
	"net/http"
	"testing"
)

func TestRegisterAndLogin(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/auth/register",
		`{"name":"Ada","email":"Ada@Example.com","password":"s3cret"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	body := parseJSON(t, resp)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("expected 'token' in response")
	}
	user := body["user"].(map[string]interface{})
	if user["email"] != "ada@example.com" {
		t.Errorf("expected normalized email, got %v", user["email"])
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Error("password hash must not be serialized")
	}

	// the issued token authenticates API calls
	resp, err = doRequest(ta.app, http.MethodGet, "/api/songs", "", map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"s3cret"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if parseJSON(t, resp)["token"] == "" {
		t.Error("expected 'token' in login response")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ta := setupApp(t)
	body := `{"name":"Ada","email":"ada@example.com","password":"s3cret"}`

	resp, err := doRequest(ta.app, http.MethodPost, "/api/auth/register", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/auth/register", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, resp, "BAD_REQUEST")
}

func TestRegister_MissingFields(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/auth/register", `{"email":"ada@example.com"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, resp, "VALIDATION_ERROR")
}

func TestLogin_WrongPassword(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/auth/register",
		`{"name":"Ada","email":"ada@example.com","password":"s3cret"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	for _, body := range []string{
		`{"email":"ada@example.com","password":"wrong"}`,
		`{"email":"nobody@example.com","password":"s3cret"}`,
	} {
		resp, err = doRequest(ta.app, http.MethodPost, "/api/auth/login", body, nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusUnauthorized)
	}
}
