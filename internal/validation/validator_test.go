// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil {
		t.Fatal("GetValidator() returned nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same instance")
	}
}

type payload struct {
	Event    string `validate:"required"`
	SeriesID string `validate:"omitempty,numericid"`
	Episode  int    `validate:"min=1"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     payload
		wantErr   bool
		wantField string
		wantTag   string
	}{
		{"valid", payload{Event: "media.scrobble", SeriesID: "12345", Episode: 1}, false, "", ""},
		{"empty id allowed", payload{Event: "media.scrobble", Episode: 3}, false, "", ""},
		{"missing event", payload{Episode: 1}, true, "payload.Event", "required"},
		{"non numeric id", payload{Event: "x", SeriesID: "12a", Episode: 1}, true, "payload.SeriesID", "numericid"},
		{"episode zero", payload{Event: "x", Episode: 0}, true, "payload.Episode", "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() expected error, got nil")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&payload{SeriesID: "abc"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("Details missing fields list: %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "payload.Event is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}

	single := ValidateStruct(&payload{Event: "x", Episode: 0}).ToAPIError()
	if single.Message != "payload.Episode must be at least 1" {
		t.Errorf("single Message = %q", single.Message)
	}
	if single.Details["field"] != "payload.Episode" {
		t.Errorf("single Details = %v", single.Details)
	}
}
