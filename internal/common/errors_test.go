package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"validation", ErrUnsupportedMethod, KindValidation},
		{"not found", ErrCodeInvalidOrExpired, KindNotFound},
		{"conflict", ErrUsernameConflict, KindConflict},
		{"unauthorized", ErrCSRFInvalid, KindUnauthorized},
		{"wrapped", fmt.Errorf("exchange: %w", ErrVerifierInvalid), KindUnauthorized},
		{"upstream", Upstream(context.DeadlineExceeded), KindUpstream},
		{"plain", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUpstream(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Upstream(nil))

	err := Upstream(errors.New("dial tcp: refused"))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestAbbrevMasksTail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "***", Abbrev("short"))
	assert.Equal(t, "abcdef***", Abbrev("abcdefghij"))
}
