// Package classifier maps a raised error and an optional model finish-reason
// onto a typed ErrorClassification, the single decision point that drives
// cooldown policy and breaker transitions for the rest of the module.
package classifier

import (
	"regexp"
	"strings"
	"time"

	"github.com/keyrotate/keyrotate/core"
)

// ErrorType is the closed set of classification outcomes.
type ErrorType string

const (
	Quota      ErrorType = "QUOTA"
	Transient  ErrorType = "TRANSIENT"
	Auth       ErrorType = "AUTH"
	BadRequest ErrorType = "BAD_REQUEST"
	Safety     ErrorType = "SAFETY"
	Recitation ErrorType = "RECITATION"
	Timeout    ErrorType = "TIMEOUT"
	Unknown    ErrorType = "UNKNOWN"
)

// Classification is the verdict the classifier produces for a single
// failure. It alone drives breaker transitions (keystate.Key mutation) —
// never the raw error or the retry outcome.
type Classification struct {
	Type          ErrorType
	Retryable     bool
	CooldownMs    int64
	MarkKeyFailed bool
	MarkKeyDead   bool
}

// StatusCoder is implemented by caller errors that expose an HTTP-like
// status code directly, e.g. a provider SDK's response-wrapping error type.
// Errors that don't implement it are classified from their message text
// alone.
type StatusCoder interface {
	StatusCode() int
}

// TimeoutError is implemented by errors that represent a deadline
// expiring, independent of their message text (e.g. context.DeadlineExceeded
// wrappers). context.DeadlineExceeded itself satisfies this via Timeout().
type TimeoutError interface {
	Timeout() bool
}

var (
	authPattern      = regexp.MustCompile(`(?i)403|permission.denied|invalid.api.key|unauthorized|unauthenticated`)
	quotaPattern     = regexp.MustCompile(`(?i)429|quota|exhausted|resource exhausted|too many requests|rate limit`)
	badRequestPattern = regexp.MustCompile(`(?i)400|invalid argument|failed precondition|malformed|not found|404`)
	transientPattern = regexp.MustCompile(`(?i)500|502|503|504|internal|unavailable|deadline|timeout|overloaded`)
	timeoutWord      = regexp.MustCompile(`(?i)timeout`)
)

// Classify applies a fixed rule order. The first matching rule wins;
// finishReason is checked before anything about err.
func Classify(err error, finishReason string) Classification {
	switch finishReason {
	case "SAFETY":
		return Classification{Type: Safety, Retryable: false, CooldownMs: 0, MarkKeyFailed: false, MarkKeyDead: false}
	case "RECITATION":
		return Classification{Type: Recitation, Retryable: false, CooldownMs: 0, MarkKeyFailed: false, MarkKeyDead: false}
	}

	if err == nil {
		return Classification{Type: Unknown, Retryable: true, CooldownMs: int64(core.CooldownTransient / time.Millisecond), MarkKeyFailed: true, MarkKeyDead: false}
	}

	msg := err.Error()
	status := statusOf(err)

	if isTimeout(err, msg) {
		return Classification{Type: Timeout, Retryable: true, CooldownMs: int64(core.CooldownTransient / time.Millisecond), MarkKeyFailed: true, MarkKeyDead: false}
	}

	if status == 403 || authPattern.MatchString(msg) {
		return Classification{Type: Auth, Retryable: false, CooldownMs: 0, MarkKeyFailed: true, MarkKeyDead: true}
	}

	if status == 429 || quotaPattern.MatchString(msg) {
		return Classification{Type: Quota, Retryable: true, CooldownMs: int64(core.CooldownQuota / time.Millisecond), MarkKeyFailed: true, MarkKeyDead: false}
	}

	if status == 400 || badRequestPattern.MatchString(msg) {
		return Classification{Type: BadRequest, Retryable: false, CooldownMs: 0, MarkKeyFailed: false, MarkKeyDead: false}
	}

	if isTransientStatus(status) || transientPattern.MatchString(msg) {
		return Classification{Type: Transient, Retryable: true, CooldownMs: int64(core.CooldownTransient / time.Millisecond), MarkKeyFailed: true, MarkKeyDead: false}
	}

	return Classification{Type: Unknown, Retryable: true, CooldownMs: int64(core.CooldownTransient / time.Millisecond), MarkKeyFailed: true, MarkKeyDead: false}
}

func statusOf(err error) int {
	var sc StatusCoder
	if as(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func isTimeout(err error, msg string) bool {
	var te TimeoutError
	if as(err, &te) && te.Timeout() {
		return true
	}
	return timeoutWord.MatchString(msg)
}

func isTransientStatus(status int) bool {
	switch status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// as is a local stand-in for errors.As covering the two narrow interfaces
// above: it walks the single-error Unwrap chain itself. Errors that wrap
// several causes (Unwrap() []error) are not descended into.
func as(err error, target interface{}) bool {
	switch t := target.(type) {
	case *StatusCoder:
		for e := err; e != nil; e = unwrap(e) {
			if sc, ok := e.(StatusCoder); ok {
				*t = sc
				return true
			}
		}
	case *TimeoutError:
		for e := err; e != nil; e = unwrap(e) {
			if te, ok := e.(TimeoutError); ok {
				*t = te
				return true
			}
		}
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// NormalizeFinishReason upper-cases caller-provided finish reasons so
// "safety"/"Safety"/"SAFETY" are treated identically, mirroring how model
// providers are inconsistent about casing.
func NormalizeFinishReason(reason string) string {
	return strings.ToUpper(strings.TrimSpace(reason))
}
