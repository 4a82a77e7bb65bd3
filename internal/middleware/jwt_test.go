package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/auth"
)

func runJWT(t *testing.T, codec *auth.Codec, header string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	if err := JWTAuth(codec)(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	return rec, c
}

func TestJWTAuthAcceptsAccessToken(t *testing.T) {
	codec := auth.NewCodec("test-secret")
	tok, err := codec.Sign(auth.KindAccess, "user-1", map[string]any{"device_id": "dev-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	rec, c := runJWT(t, codec, "Bearer "+tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := c.Get("user_id"); got != "user-1" {
		t.Errorf("user_id = %v", got)
	}
	if got := c.Get("device_id"); got != "dev-1" {
		t.Errorf("device_id = %v", got)
	}
}

func TestJWTAuthRejections(t *testing.T) {
	codec := auth.NewCodec("test-secret")
	refresh, err := codec.Sign(auth.KindRefresh, "user-1", nil, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	foreign, err := auth.NewCodec("other-secret").Sign(auth.KindAccess, "user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer garbage"},
		{"refresh token", "Bearer " + refresh},
		{"wrong secret", "Bearer " + foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := runJWT(t, codec, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
