package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	corsHandler := CORS([]string{"http://localhost:5173", "https://kpi.example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	tests := []struct {
		name          string
		origin        string
		method        string
		requestMethod string // Access-Control-Request-Method on preflights
		wantOrigin    string
	}{
		{"allowed origin", "http://localhost:5173", http.MethodGet, "", "http://localhost:5173"},
		{"second allowed origin", "https://kpi.example.com", http.MethodGet, "", "https://kpi.example.com"},
		{"disallowed origin", "http://evil.com", http.MethodGet, "", ""},
		{"preflight delete", "http://localhost:5173", http.MethodOptions, http.MethodDelete, "http://localhost:5173"},
		{"preflight put refused", "http://localhost:5173", http.MethodOptions, http.MethodPut, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/users/ana", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.requestMethod != "" {
				req.Header.Set("Access-Control-Request-Method", tt.requestMethod)
			}

			rec := httptest.NewRecorder()
			corsHandler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}
