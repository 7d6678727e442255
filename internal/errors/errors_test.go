package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/dc-tec/stream-operator/internal/constants"
)

func TestReason(t *testing.T) {
	gatewayErr := WrapGateway(errors.New("connection refused"))

	tests := []struct {
		name       string
		err        error
		wantReason string
		wantOK     bool
	}{
		{
			name:   "nil error",
			err:    nil,
			wantOK: false,
		},
		{
			name:       "configuration error",
			err:        Configurationf("CA secret %s is missing", "demo-cluster-ca"),
			wantReason: constants.ReasonConfigurationError,
			wantOK:     true,
		},
		{
			name:       "wrapped configuration error",
			err:        fmt.Errorf("reconcile CAs: %w", WrapConfiguration(errors.New("bad policy"))),
			wantReason: constants.ReasonConfigurationError,
			wantOK:     true,
		},
		{
			name:       "gateway error",
			err:        gatewayErr,
			wantReason: constants.ReasonGatewayError,
			wantOK:     true,
		},
		{
			name:       "health timeout wins over wrapped gateway cause",
			err:        &HealthTimeoutError{Instance: "demo-1", Attempts: 10, Err: gatewayErr},
			wantReason: constants.ReasonHealthTimeout,
			wantOK:     true,
		},
		{
			name:       "partial rollout wins over wrapped gateway cause",
			err:        &PartialRolloutError{Failed: []string{"exporter"}, Attempted: 2, First: gatewayErr},
			wantReason: constants.ReasonPartialRollout,
			wantOK:     true,
		},
		{
			name:   "unclassified error",
			err:    errors.New("boom"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := Reason(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("Reason() ok = %v, want %v", ok, tt.wantOK)
			}
			if reason != tt.wantReason {
				t.Errorf("Reason() = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestWrapGatewayKeepsClassification(t *testing.T) {
	cfg := Configurationf("missing secret")
	if got := WrapGateway(cfg); !IsConfiguration(got) || IsGateway(got) {
		t.Fatalf("WrapGateway() reclassified a configuration error: %v", got)
	}

	once := WrapGateway(errors.New("boom"))
	twice := WrapGateway(once)
	if once != twice {
		t.Fatalf("WrapGateway() wrapped an already wrapped error twice")
	}

	if WrapGateway(nil) != nil {
		t.Fatalf("WrapGateway(nil) should be nil")
	}
}

func TestHealthTimeoutErrorUnwrap(t *testing.T) {
	cause := errors.New("pod not ready")
	err := fmt.Errorf("stage c: %w", &HealthTimeoutError{Instance: "demo-2", Attempts: 3, Err: cause})

	if !errors.Is(err, ErrHealthTimeout) {
		t.Errorf("expected errors.Is(err, ErrHealthTimeout)")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is(err, cause)")
	}

	var hte *HealthTimeoutError
	if !errors.As(err, &hte) || hte.Instance != "demo-2" {
		t.Fatalf("errors.As() did not recover the instance name")
	}
}

func TestPartialRolloutErrorMessage(t *testing.T) {
	err := &PartialRolloutError{
		Failed:    []string{"demo-exporter", "demo-balancer"},
		Attempted: 3,
		First:     errors.New("deployment demo-exporter not rolled out"),
	}

	want := "partial rollout: 2 of 3 rollouts failed (demo-exporter, demo-balancer): deployment demo-exporter not rolled out"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsTransientKubernetesAPI(t *testing.T) {
	gr := schema.GroupResource{Resource: "secrets"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "too many requests", err: apierrors.NewTooManyRequests("slow down", 1), want: true},
		{name: "server timeout", err: apierrors.NewServerTimeout(gr, "get", 1), want: true},
		{name: "conflict", err: apierrors.NewConflict(gr, "demo", errors.New("modified")), want: true},
		{name: "rate limit text", err: errors.New("client rate limit exceeded"), want: true},
		{name: "not found", err: apierrors.NewNotFound(gr, "demo"), want: false},
		{name: "plain error", err: errors.New("invalid configuration"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientKubernetesAPI(tt.err); got != tt.want {
				t.Errorf("IsTransientKubernetesAPI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantRequeue bool
		wantAfter   time.Duration
	}{
		{name: "nil", err: nil},
		{name: "configuration", err: Configurationf("nope")},
		{name: "transient api", err: WrapGateway(apierrors.NewTooManyRequests("slow", 1)), wantRequeue: true, wantAfter: constants.RequeueShort},
		{name: "health timeout", err: &HealthTimeoutError{Instance: "demo-0"}, wantRequeue: true},
		{name: "partial rollout over api timeout", err: &PartialRolloutError{Failed: []string{"demo-exporter"}, Attempted: 1, First: errors.New("timeout")}, wantRequeue: true},
		{name: "unknown", err: errors.New("boom"), wantRequeue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requeue, after := ShouldRequeue(tt.err)
			if requeue != tt.wantRequeue || after != tt.wantAfter {
				t.Errorf("ShouldRequeue() = (%v, %v), want (%v, %v)", requeue, after, tt.wantRequeue, tt.wantAfter)
			}
		})
	}
}
