// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package models

import "fmt"

// Severity is the log level a ScrobbleResult is reported at.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// ScrobbleResult is the outcome of one backend update.
//
// Expected business conditions (not tracked, regression, out of range) are
// warn results; transport failures are error results. Completed and Link are
// set by list trackers when an update finished a series, so that a rating
// prompt can be sent.
type ScrobbleResult struct {
	Success   bool     `json:"success"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Completed bool     `json:"completed,omitempty"`
	Link      string   `json:"link,omitempty"`
}

// Succeeded returns a successful info result.
func Succeeded(msg string) ScrobbleResult {
	return ScrobbleResult{Success: true, Severity: SeverityInfo, Message: msg}
}

// Skipped returns an unsuccessful warn result.
func Skipped(msg string) ScrobbleResult {
	return ScrobbleResult{Success: false, Severity: SeverityWarn, Message: msg}
}

// Failed returns an error result for err.
func Failed(err error) ScrobbleResult {
	return ScrobbleResult{Success: false, Severity: SeverityError, Message: err.Error()}
}

// Failedf returns an error result with a formatted message.
func Failedf(format string, args ...any) ScrobbleResult {
	return ScrobbleResult{Success: false, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}
