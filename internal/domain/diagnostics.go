package domain

import "time"

// DiagnosticStatus grades one environment check. Warn marks a degraded
// but workable setup, such as a missing ffprobe: encodes still run, with
// default frame rate and audio parameters.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one check outcome. Hint carries the remediation the
// UI offers next to a warn or fail entry.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport is the combined environment verdict shown at startup
// and after a remediation attempt. HasFailures counts only hard
// failures; warnings do not block job submission.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Warnings    int              `json:"warnings"`
	Items       []DiagnosticItem `json:"items"`
}
