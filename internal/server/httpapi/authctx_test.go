package httpapi

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
)

func TestWithAccountID_And_AccountIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := AccountIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("expected no account id in empty ctx")
	}

	want := uuid.Must(uuid.NewV4())
	got, ok := AccountIDFromCtx(WithAccountID(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("mismatch: got %s (%v), want %s", got, ok, want)
	}

	bad := context.WithValue(context.Background(), accountIDKey, "not-uuid")
	if id, ok := AccountIDFromCtx(bad); ok || id != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
}
