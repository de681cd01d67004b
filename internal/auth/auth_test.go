package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMintAndValidateToken(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.MintToken("user-42", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	userID, err := v.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != "user-42" {
		t.Errorf("subject = %q, want user-42", userID)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").MintToken("u1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewVerifier("secret-b").ValidateToken(token); err == nil {
		t.Error("token signed with another secret validated")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.MintToken("u1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.ValidateToken(token); err == nil {
		t.Error("expired token validated")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	v := NewVerifier("test-secret")
	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := v.ValidateToken(tok); err == nil {
			t.Errorf("garbage token %q validated", tok)
		}
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.MintToken("user-42", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotUser string
	handler := v.Middleware(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserFromContext(r)
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
		wantUser   string
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK, wantUser: "user-42"},
		{name: "cookie", cookie: token, wantStatus: http.StatusOK, wantUser: "user-42"},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "Token " + token, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/bookmarks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "auth_token", Value: tt.cookie})
			}

			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user in context = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestUserFromContext_Unset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := UserFromContext(req); got != "" {
		t.Errorf("UserFromContext() = %q, want empty", got)
	}
}
