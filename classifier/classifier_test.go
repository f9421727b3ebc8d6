package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string  { return e.msg }
func (e *statusError) StatusCode() int { return e.status }

func TestClassify_FinishReasonTakesPriority(t *testing.T) {
	c := Classify(&statusError{status: 429, msg: "quota exceeded"}, "SAFETY")
	require.Equal(t, Safety, c.Type)
	require.False(t, c.Retryable)
	require.False(t, c.MarkKeyFailed)

	c = Classify(nil, "RECITATION")
	require.Equal(t, Recitation, c.Type)
}

func TestClassify_Auth(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"status 403", &statusError{status: 403, msg: "forbidden"}},
		{"message pattern", &statusError{msg: "Invalid API Key supplied"}},
		{"unauthorized message", &statusError{msg: "unauthorized"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err, "")
			require.Equal(t, Auth, c.Type)
			require.False(t, c.Retryable)
			require.True(t, c.MarkKeyFailed)
			require.True(t, c.MarkKeyDead)
		})
	}
}

func TestClassify_Quota(t *testing.T) {
	c := Classify(&statusError{status: 429, msg: "too many requests"}, "")
	require.Equal(t, Quota, c.Type)
	require.True(t, c.Retryable)
	require.True(t, c.MarkKeyFailed)
	require.False(t, c.MarkKeyDead)
	require.Equal(t, int64(300_000), c.CooldownMs)
}

func TestClassify_BadRequest(t *testing.T) {
	c := Classify(&statusError{status: 400, msg: "bad"}, "")
	require.Equal(t, BadRequest, c.Type)
	require.False(t, c.Retryable)
	require.False(t, c.MarkKeyFailed)
}

func TestClassify_Transient(t *testing.T) {
	for _, status := range []int{500, 502, 503, 504} {
		c := Classify(&statusError{status: status, msg: "err"}, "")
		require.Equal(t, Transient, c.Type)
		require.True(t, c.Retryable)
		require.Equal(t, int64(60_000), c.CooldownMs)
	}
}

func TestClassify_Timeout(t *testing.T) {
	c := Classify(&statusError{msg: "context deadline exceeded: TIMEOUT"}, "")
	require.Equal(t, Timeout, c.Type)
	require.True(t, c.Retryable)
	require.True(t, c.MarkKeyFailed)
}

func TestClassify_Unknown(t *testing.T) {
	c := Classify(&statusError{msg: "something bizarre happened"}, "")
	require.Equal(t, Unknown, c.Type)
	require.True(t, c.Retryable)
	require.True(t, c.MarkKeyFailed)
}

func TestClassify_RuleOrder_AuthBeforeQuota(t *testing.T) {
	// Status 403 must win even if the message also mentions quota language.
	c := Classify(&statusError{status: 403, msg: "quota exceeded, unauthorized"}, "")
	require.Equal(t, Auth, c.Type)
}
