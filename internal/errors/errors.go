package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/dc-tec/stream-operator/internal/constants"
)

// Configuration errors indicate the cluster spec cannot be reconciled as written.
// They are fatal to the cycle and are not retried until the next periodic cycle.

// ErrConfiguration indicates a configuration error that requires user intervention,
// for example a CA that must not be generated but whose secrets do not exist.
var ErrConfiguration = errors.New("configuration error")

// Gateway errors indicate a failure talking to the substrate API. The cycle fails
// and relies on the next cycle, which is safe because every step is idempotent.

// ErrGateway indicates a failed call through a secret, instance or deployment gateway.
var ErrGateway = errors.New("gateway error")

// ErrHealthTimeout indicates a restarted instance never became healthy.
var ErrHealthTimeout = errors.New("health timeout")

// ErrPartialRollout indicates that some independent rollouts failed while others succeeded.
var ErrPartialRollout = errors.New("partial rollout")

// HealthTimeoutError reports the instance that did not become healthy after a restart.
type HealthTimeoutError struct {
	Instance string
	Attempts int
	Err      error
}

func (e *HealthTimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: instance %s not healthy after %d attempts", ErrHealthTimeout, e.Instance, e.Attempts)
	}
	return fmt.Sprintf("%s: instance %s not healthy after %d attempts: %v", ErrHealthTimeout, e.Instance, e.Attempts, e.Err)
}

func (e *HealthTimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHealthTimeout}
	}
	return []error{ErrHealthTimeout, e.Err}
}

// PartialRolloutError reports which independent rollouts failed. First is the error
// of the first failure in attempt order.
type PartialRolloutError struct {
	Failed    []string
	Attempted int
	First     error
}

func (e *PartialRolloutError) Error() string {
	return fmt.Sprintf("%s: %d of %d rollouts failed (%s): %v",
		ErrPartialRollout, len(e.Failed), e.Attempted, strings.Join(e.Failed, ", "), e.First)
}

func (e *PartialRolloutError) Unwrap() []error {
	if e.First == nil {
		return []error{ErrPartialRollout}
	}
	return []error{ErrPartialRollout, e.First}
}

// WrapConfiguration wraps an error as a configuration error.
func WrapConfiguration(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// Configurationf builds a configuration error from a format string.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// WrapGateway wraps an error returned by the substrate API as a gateway error.
// Errors that already carry a classification are returned as-is.
func WrapGateway(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGateway) || errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGateway, err)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return err != nil && errors.Is(err, ErrConfiguration)
}

// IsGateway reports whether err is a gateway error.
func IsGateway(err error) bool {
	return err != nil && errors.Is(err, ErrGateway)
}

// IsHealthTimeout reports whether err is a health timeout.
func IsHealthTimeout(err error) bool {
	return err != nil && errors.Is(err, ErrHealthTimeout)
}

// IsPartialRollout reports whether err is a partial rollout failure.
func IsPartialRollout(err error) bool {
	return err != nil && errors.Is(err, ErrPartialRollout)
}

// IsTransientKubernetesAPI checks if an error is a transient Kubernetes API error.
func IsTransientKubernetesAPI(err error) bool {
	if err == nil {
		return false
	}

	if apierrors.IsTooManyRequests(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err) ||
		apierrors.IsConflict(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"rate limit",
		"too many requests",
		"server error",
		"service unavailable",
		"internal server error",
		"context deadline exceeded",
		"timeout",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// Reason returns the condition reason for a classified error.
// The boolean is false for errors outside the taxonomy.
func Reason(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case IsConfiguration(err):
		return constants.ReasonConfigurationError, true
	case IsHealthTimeout(err):
		return constants.ReasonHealthTimeout, true
	case IsPartialRollout(err):
		return constants.ReasonPartialRollout, true
	case IsGateway(err):
		return constants.ReasonGatewayError, true
	default:
		return "", false
	}
}

// ShouldRequeue determines if an error should trigger a requeue.
// Configuration errors wait for the next periodic cycle or a spec change.
// Returns (shouldRequeue, requeueAfter).
func ShouldRequeue(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}

	if IsConfiguration(err) {
		return false, 0
	}

	// Restart failures carry words like "timeout" but are not API hiccups.
	if IsHealthTimeout(err) || IsPartialRollout(err) {
		return true, 0
	}

	if IsTransientKubernetesAPI(err) {
		return true, constants.RequeueShort
	}

	// Everything else uses controller-runtime's rate-limited backoff.
	return true, 0
}
