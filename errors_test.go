package plasmite

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ExitCodeMapping(t *testing.T) {
	assert.Equal(t, 3, ExitCode(KindNotFound))
	assert.Equal(t, 5, ExitCode(KindBusy))
	assert.Equal(t, 1, ExitCode(KindInternal))
	assert.Equal(t, 124, TimeoutExitCode)
}

func Test_ExitCodeUnknownKindFallsBackToInternal(t *testing.T) {
	assert.Equal(t, ExitCode(KindInternal), ExitCode(Kind("bogus")))
}

func Test_KindOfUnwrapsWrappedError(t *testing.T) {
	base := newErr(KindCorrupt, "bad frame")
	wrapped := fmt.Errorf("validation failed: %w", base)
	assert.Equal(t, KindCorrupt, KindOf(wrapped))
}

func Test_KindOfNonPlasmiteErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
}

func Test_ErrorIsMatchesOnKind(t *testing.T) {
	err := newErr(KindBusy, "locked")
	assert.True(t, errors.Is(err, &Error{Kind: KindBusy}))
	assert.False(t, errors.Is(err, &Error{Kind: KindCorrupt}))
}

func Test_ErrorMessageIncludesContext(t *testing.T) {
	seq := uint64(42)
	err := newErr(KindNotFound, "missing").withSeq(seq).withPath("/tmp/pool")
	msg := err.Error()
	assert.Contains(t, msg, "seq=42")
	assert.Contains(t, msg, "/tmp/pool")
}
