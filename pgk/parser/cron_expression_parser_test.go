package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/zed-io/fineract-sub004/custom_errors"
)

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		after   time.Time
		expects time.Time
	}{
		{
			name:    "next 15-min mark in same hour",
			expr:    "*/15 14 * * *",
			after:   time.Date(2025, 6, 21, 14, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 21, 14, 15, 0, 0, time.UTC),
		},
		{
			name:    "strictly after an exact match",
			expr:    "0 0 * * *",
			after:   time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "month rollover for first-of-month",
			expr:    "0 4 1 * *",
			after:   time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 2, 1, 4, 0, 0, 0, time.UTC),
		},
		{
			name:    "weekly on sunday",
			expr:    "0 3 * * 0",
			after:   time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC), // Wednesday
			expects: time.Date(2025, 6, 22, 3, 0, 0, 0, time.UTC),
		},
		{
			name:    "six fields with seconds",
			expr:    "30 * * * * *",
			after:   time.Date(2025, 6, 21, 14, 0, 30, 0, time.UTC),
			expects: time.Date(2025, 6, 21, 14, 1, 30, 0, time.UTC),
		},
		{
			name:    "descriptor",
			expr:    "@daily",
			after:   time.Date(2025, 6, 21, 14, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "every interval",
			expr:    "@every 90s",
			after:   time.Date(2025, 6, 21, 14, 0, 0, 0, time.UTC),
			expects: time.Date(2025, 6, 21, 14, 1, 30, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.expr, tt.after)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.expects) {
				t.Errorf("NextOccurrence(%q, %v) = %v, want %v", tt.expr, tt.after, got, tt.expects)
			}
			if !got.After(tt.after) {
				t.Errorf("NextOccurrence returned %v, not strictly after %v", got, tt.after)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		valid bool
	}{
		{"five fields", "0 0 * * *", true},
		{"ranges and lists", "*/5 0 1-10 * 1,3", true},
		{"six fields", "0 30 2 * * *", true},
		{"empty", "", false},
		{"garbage", "every day", false},
		{"out of range minute", "61 * * * *", false},
		{"too many fields", "0 0 0 0 * * * *", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expr)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if !errors.Is(err, custom_errors.ErrInvalidCronExpression) {
					t.Errorf("expected ErrInvalidCronExpression, got %v", err)
				}
			}
		})
	}
}
