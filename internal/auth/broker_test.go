package auth

import (
	"strings"
	"testing"
	"time"
)

func TestTokenValid(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token *Token
		want  bool
	}{
		{"nil", nil, false},
		{"expired", &Token{ExpiresOn: now.Add(-time.Minute)}, false},
		{"inside refresh buffer", &Token{ExpiresOn: now.Add(4 * time.Minute)}, false},
		{"fresh", &Token{ExpiresOn: now.Add(time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.valid(now); got != tt.want {
				t.Errorf("valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeBrokerResponse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"ok", `{"linuxBrokerVersion":"2.0.1"}`, ""},
		{"empty error string", `{"error":""}`, ""},
		{"error string", `{"error":"bad session"}`, "broker error: bad session"},
		{"error object", `{"error":{"code":"no_account"}}`, `broker error: {"code":"no_account"}`},
		{"not json", `nope`, "unmarshal response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBrokerResponse(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestTokenFromResponse(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	account := map[string]any{"localAccountId": "local-1"}

	t.Run("top level", func(t *testing.T) {
		resp := map[string]any{
			"accessToken": "tok",
			"expiresOn":   float64(now.Add(30 * time.Minute).Unix()),
			"accountId":   "acct-1",
		}
		tok, err := tokenFromResponse(resp, account, now)
		if err != nil {
			t.Fatal(err)
		}
		if tok.AccessToken != "tok" || tok.AccountID != "acct-1" {
			t.Errorf("token = %+v", tok)
		}
		if !tok.ExpiresOn.Equal(now.Add(30 * time.Minute)) {
			t.Errorf("expires = %v", tok.ExpiresOn)
		}
	})

	t.Run("nested", func(t *testing.T) {
		resp := map[string]any{
			"brokerTokenResponse": map[string]any{"accessToken": "nested"},
		}
		tok, err := tokenFromResponse(resp, account, now)
		if err != nil {
			t.Fatal(err)
		}
		if tok.AccessToken != "nested" {
			t.Errorf("access token = %q", tok.AccessToken)
		}
		if tok.AccountID != "local-1" {
			t.Errorf("account = %q", tok.AccountID)
		}
		if !tok.ExpiresOn.Equal(now.Add(time.Hour)) {
			t.Errorf("expires = %v, want one hour default", tok.ExpiresOn)
		}
	})

	t.Run("nested error", func(t *testing.T) {
		resp := map[string]any{
			"brokerTokenResponse": map[string]any{"error": map[string]any{"status": "interaction_required"}},
		}
		_, err := tokenFromResponse(resp, account, now)
		if err == nil || !strings.Contains(err.Error(), "interaction_required") {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := tokenFromResponse(map[string]any{}, account, now); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestAuthParameters(t *testing.T) {
	b := NewBroker("", []string{"Calendars.ReadWrite"})
	if b.clientID != DefaultClientID {
		t.Errorf("clientID = %q", b.clientID)
	}
	if b.sessionID == "" {
		t.Error("missing session ID")
	}

	params := b.authParameters(map[string]any{"realm": "tenant-1", "username": "me@example.com"})
	if params["authority"] != "https://login.microsoftonline.com/tenant-1" {
		t.Errorf("authority = %v", params["authority"])
	}
	if params["username"] != "me@example.com" {
		t.Errorf("username = %v", params["username"])
	}
	scopes, _ := params["requestedScopes"].([]string)
	if len(scopes) != 1 || scopes[0] != "Calendars.ReadWrite" {
		t.Errorf("scopes = %v", params["requestedScopes"])
	}

	params = NewBroker("client", nil).authParameters(nil)
	if params["authority"] != DefaultAuthority {
		t.Errorf("authority = %v", params["authority"])
	}
	if _, ok := params["username"]; ok {
		t.Error("unexpected username")
	}
	scopes, _ = params["requestedScopes"].([]string)
	if len(scopes) != 1 || scopes[0] != "https://graph.microsoft.com/.default" {
		t.Errorf("scopes = %v", params["requestedScopes"])
	}
}
