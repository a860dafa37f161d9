package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ragchat/internal/domain"
)

func TestKind_GRPCStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.PermissionDenied, domain.ErrUnauthorized},
		{codes.ResourceExhausted, domain.ErrUnavailable},
		{codes.NotFound, domain.ErrInvalidConfig},
		{codes.Canceled, nil},
	}
	for _, tt := range tests {
		if got := Kind(status.Error(tt.code, "x")); got != tt.want {
			t.Errorf("Kind(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError("gemini embed", status.Error(codes.Unauthenticated, "API key not valid"))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated {
		t.Errorf("status code should survive wrapping, got %v", st)
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(context.Background(), "RAGCHAT_TEST_UNSET_GEMINI_KEY")
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
