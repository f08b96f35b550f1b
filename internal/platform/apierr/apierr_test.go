package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validationf("bad input"), want: KindValidation},
		{name: "wrapped", err: fmt.Errorf("reindex: %w", NotFound(errors.New("missing"))), want: KindNotFound},
		{name: "plain_error", err: errors.New("boom"), want: KindInternal},
		{name: "quota", err: Quota(errors.New("429"), time.Minute), want: KindQuotaExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestFromWrapsUnknown(t *testing.T) {
	ae := From(errors.New("db down"))
	if ae.Status != http.StatusInternalServerError || ae.Kind != KindInternal {
		t.Fatalf("From gave status=%d kind=%q", ae.Status, ae.Kind)
	}
}

func TestFromKeepsRetryAfter(t *testing.T) {
	src := Quota(errors.New("rate limited"), 30*time.Second)
	ae := From(fmt.Errorf("generate: %w", src))
	if ae.RetryAfter != 30*time.Second {
		t.Fatalf("RetryAfter=%v, want 30s", ae.RetryAfter)
	}
	if !IsKind(ae, KindQuotaExceeded) {
		t.Fatalf("expected quota kind, got %q", ae.Kind)
	}
}
