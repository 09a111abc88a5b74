package internaldefs

import (
	"github.com/MrEthical07/passgate"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   passgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   passgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: passgate.MetricLoginSuccess, Name: "passgate_login_success_total", Help: "Password steps that issued a login code."},
	{ID: passgate.MetricLoginFailure, Name: "passgate_login_failure_total", Help: "Failed password steps."},
	{ID: passgate.MetricFinalizeSuccess, Name: "passgate_finalize_success_total", Help: "Second factors that minted an access token."},
	{ID: passgate.MetricFinalizeFailure, Name: "passgate_finalize_failure_total", Help: "Failed second factors."},
	{ID: passgate.MetricPasswordVerifySuccess, Name: "passgate_password_verify_success_total", Help: "Successful password verifications."},
	{ID: passgate.MetricPasswordVerifyFailure, Name: "passgate_password_verify_failure_total", Help: "Wrong passwords counted toward lockout."},
	{ID: passgate.MetricAccountLocked, Name: "passgate_account_locked_total", Help: "Lockouts applied."},
	{ID: passgate.MetricLockedRejected, Name: "passgate_locked_rejected_total", Help: "Attempts refused while a lock was in force."},
	{ID: passgate.MetricPasswordRotated, Name: "passgate_password_rotated_total", Help: "Passwords installed as current credential."},
	{ID: passgate.MetricPasswordReuseRejected, Name: "passgate_password_reuse_rejected_total", Help: "Candidates rejected for matching history."},
	{ID: passgate.MetricPasswordPolicyRejected, Name: "passgate_password_policy_rejected_total", Help: "Candidates rejected by the composition policy."},
	{ID: passgate.MetricCodeIssued, Name: "passgate_code_issued_total", Help: "Verification codes issued."},
	{ID: passgate.MetricCodeVerified, Name: "passgate_code_verified_total", Help: "Verification codes accepted."},
	{ID: passgate.MetricCodeFailed, Name: "passgate_code_failed_total", Help: "Verification checks that cost an attempt."},
	{ID: passgate.MetricCodeDenied, Name: "passgate_code_denied_total", Help: "Checks against expired or exhausted codes."},
	{ID: passgate.MetricCodeBypassed, Name: "passgate_code_bypassed_total", Help: "Codes returned to the caller instead of delivered."},
	{ID: passgate.MetricSplitTokenRejected, Name: "passgate_split_token_rejected_total", Help: "Split tokens that failed to decode or matched another purpose."},
	{ID: passgate.MetricPasswordResetRequest, Name: "passgate_password_reset_request_total", Help: "Password reset requests."},
	{ID: passgate.MetricPasswordResetConfirmSuccess, Name: "passgate_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: passgate.MetricPasswordResetConfirmFailure, Name: "passgate_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
}

var HistogramDefs = []HistogramDef{
	{ID: passgate.MetricLoginLatency, Name: "passgate_login_latency_seconds", Help: "Password step latency."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable in metric names.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
