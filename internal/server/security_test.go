package server

import (
	"net/http/httptest"
	"testing"
)

func TestBuildCSPHeader(t *testing.T) {
	got := APICSPConfig().BuildCSPHeader()
	want := "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	if got != want {
		t.Errorf("BuildCSPHeader() = %q, want %q", got, want)
	}

	cfg := CSPConfig{DefaultSrc: []string{"'self'"}, ImgSrc: []string{"'self'", "data:"}, ConnectSrc: []string{"'self'", "ws:"}}
	if got := cfg.BuildCSPHeader(); got != "default-src 'self'; img-src 'self' data:; connect-src 'self' ws:" {
		t.Errorf("BuildCSPHeader() = %q", got)
	}

	if (CSPConfig{}).BuildCSPHeader() != "" {
		t.Error("empty config should produce an empty header")
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(APICSPConfig(), okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": APICSPConfig().BuildCSPHeader(),
	}
	for h, v := range want {
		if got := w.Header().Get(h); got != v {
			t.Errorf("%s = %q, want %q", h, got, v)
		}
	}

	w = httptest.NewRecorder()
	SecurityHeaders(CSPConfig{}, okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty CSP config should not set the header")
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/MsgPack", true},
		{"text/csv", true},
		{"text/html", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateContentType(tt.contentType, GridContentTypes); got != tt.want {
			t.Errorf("ValidateContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
