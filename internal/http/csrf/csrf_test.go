package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jw6ventures/campuscal/internal/config"
)

func newHandler() http.Handler {
	cfg := &config.Config{BaseURL: "https://cal.example.edu"}
	return Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(TokenFromContext(r.Context())))
	}))
}

func TestIssuesCookieOnSafeRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != csrfCookieName {
		t.Fatalf("cookies = %v", cookies)
	}
	if !cookies[0].Secure || !cookies[0].HttpOnly {
		t.Error("cookie should be secure and http only on https base URLs")
	}
	if rec.Body.String() != cookies[0].Value {
		t.Error("token in context should match cookie")
	}
}

func TestValidatesStateChangingRequests(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "matching header", header: "tok", want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusForbidden},
		{name: "mismatched header", header: "other", want: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			if tc.header != "" {
				req.Header.Set(headerName, tc.header)
			}
			rec := httptest.NewRecorder()
			newHandler().ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
