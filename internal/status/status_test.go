package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestFromErrorUsesClassifier(t *testing.T) {
	var conditions []metav1.Condition

	classify := func(err error) (string, bool) {
		if err.Error() == "known" {
			return "ConfigurationError", true
		}
		return "", false
	}

	FromError(&conditions, 3, "Ready", errors.New("known"), classify)
	cond := Get(conditions, "Ready")
	require.NotNil(t, cond)
	assert.Equal(t, metav1.ConditionFalse, cond.Status)
	assert.Equal(t, "ConfigurationError", cond.Reason)
	assert.Equal(t, int64(3), cond.ObservedGeneration)

	FromError(&conditions, 4, "Ready", errors.New("other"), classify)
	cond = Get(conditions, "Ready")
	require.NotNil(t, cond)
	assert.Equal(t, "Error", cond.Reason)
	assert.Equal(t, "other", cond.Message)
}

func TestReadyFlipsCondition(t *testing.T) {
	var conditions []metav1.Condition

	False(&conditions, 1, "Ready", "GatewayError", "boom")
	assert.True(t, IsFalse(conditions, "Ready"))

	Ready(&conditions, 2, "Ready", "cycle complete")
	assert.True(t, IsTrue(conditions, "Ready"))
	assert.Len(t, conditions, 1)

	Remove(&conditions, "Ready")
	assert.Nil(t, Get(conditions, "Ready"))
}
