package plasmite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_WithBusyRetrySucceedsAfterTransientBusy(t *testing.T) {
	attempts := 0
	result, err := WithBusyRetry(context.Background(), time.Second, func() (int, *Error) {
		attempts++
		if attempts < 3 {
			return 0, newErr(KindBusy, "locked")
		}
		return 42, nil
	})
	require.Nil(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func Test_WithBusyRetryStopsImmediatelyOnOtherKinds(t *testing.T) {
	attempts := 0
	_, err := WithBusyRetry(context.Background(), time.Second, func() (int, *Error) {
		attempts++
		return 0, newErr(KindCorrupt, "bad frame")
	})
	require.NotNil(t, err)
	assert.Equal(t, KindCorrupt, err.Kind)
	assert.Equal(t, 1, attempts)
}

func Test_WithBusyRetryGivesUpPastMaxElapsed(t *testing.T) {
	_, err := WithBusyRetry(context.Background(), 30*time.Millisecond, func() (int, *Error) {
		return 0, newErr(KindBusy, "still locked")
	})
	require.NotNil(t, err)
	assert.Equal(t, KindBusy, err.Kind)
}
