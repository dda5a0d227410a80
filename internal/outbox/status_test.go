package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{input: "PENDING", want: StatusPending},
		{input: "PUBLISHED", want: StatusPublished},
		{input: "FAILED", want: StatusFailed},
		{input: "INVALID", want: StatusInvalid},
		{input: "PROCESSING", wantErr: true},
		{input: "published", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{StatusPending, StatusPublished},
		{StatusPending, StatusFailed},
		{StatusPending, StatusInvalid},
		{StatusFailed, StatusPending},
	}
	for _, tt := range allowed {
		require.True(t, tt.from.CanTransitionTo(tt.to), "%s -> %s should be allowed", tt.from, tt.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPublished, StatusPending},
		{StatusPublished, StatusFailed},
		{StatusInvalid, StatusPending},
		{StatusFailed, StatusPublished},
		{StatusPending, StatusPending},
	}
	for _, tt := range denied {
		require.False(t, tt.from.CanTransitionTo(tt.to), "%s -> %s should be denied", tt.from, tt.to)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, StatusPublished.IsTerminal())
	require.True(t, StatusInvalid.IsTerminal())
	require.False(t, StatusPending.IsTerminal())
	require.False(t, StatusFailed.IsTerminal())
}
