// Package fault defines the failure taxonomy shared by the orchestration
// pipeline. Provider clients, the credit gate and the reply generator all
// surface one of these sentinels so the transport can map any failure to a
// stable wire code without leaking internals.
package fault

import "errors"

var (
	// ErrProviderUnavailable marks transient provider failures (timeouts,
	// 5xx). Callers retry or fall back where their policy allows.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejectedInput marks failures permanent for this input;
	// never retried.
	ErrProviderRejectedInput = errors.New("provider rejected input")

	// ErrProviderQuotaExceeded marks provider-side quota exhaustion,
	// permanent for this request.
	ErrProviderQuotaExceeded = errors.New("provider quota exceeded")

	// ErrCreditDenied means the credit gate refused the reservation; no
	// external call may be made for the turn.
	ErrCreditDenied = errors.New("credit denied")

	// ErrGenerationFailed means the language-model call exhausted its
	// retry budget.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrBufferRace signals a second flush attempted while one was in
	// flight for the same conversation. Programming-bug signal: logged,
	// never silently dropped.
	ErrBufferRace = errors.New("buffer flush race detected")
)

// Code returns the stable wire code for err, suitable for
// {type:"error", code} frames. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrCreditDenied):
		return "credit_denied"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrProviderRejectedInput):
		return "rejected_input"
	case errors.Is(err, ErrProviderQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	default:
		return "internal"
	}
}

// Transient reports whether err is worth a single retry under the
// generation policy.
func Transient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
