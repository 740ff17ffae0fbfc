package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		header string
		key    string
		md     metadata.MD // nil: no incoming metadata at all
		code   codes.Code
	}{
		{"mode none passes without key", "none", "x-api-key", "secret", nil, codes.OK},
		{"unset key passes", "apikey", "x-api-key", "", nil, codes.OK},
		{"correct key", "apikey", "x-api-key", "secret", metadata.Pairs("x-api-key", "secret"), codes.OK},
		{"custom header", "apikey", "x-vm-token", "tok", metadata.Pairs("x-vm-token", "tok"), codes.OK},
		{"wrong key", "apikey", "x-api-key", "secret", metadata.Pairs("x-api-key", "wrong"), codes.Unauthenticated},
		{"key under other header", "apikey", "x-vm-token", "tok", metadata.Pairs("x-api-key", "tok"), codes.Unauthenticated},
		{"empty metadata", "apikey", "x-api-key", "secret", metadata.MD{}, codes.Unauthenticated},
		{"no metadata", "apikey", "x-api-key", "secret", nil, codes.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.md)
			}
			i := APIKeyInterceptor(tc.mode, tc.header, tc.key)
			res, err := i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
			if code := status.Code(err); code != tc.code {
				t.Fatalf("code: got %v, want %v", code, tc.code)
			}
			if tc.code == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		key    string
		sent   string
		status int
	}{
		{"mode none", "none", "secret", "", http.StatusOK},
		{"key unset", "apikey", "", "", http.StatusOK},
		{"correct key", "apikey", "secret", "secret", http.StatusOK},
		{"wrong key", "apikey", "secret", "nope", http.StatusUnauthorized},
		{"missing key", "apikey", "secret", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKeyMiddleware(tc.mode, "x-api-key", tc.key, okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
			if tc.sent != "" {
				req.Header.Set("x-api-key", tc.sent)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Errorf("status: got %d, want %d", rr.Code, tc.status)
			}
		})
	}
}
