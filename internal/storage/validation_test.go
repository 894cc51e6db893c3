package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/revfinder/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		str     string
		wantErr bool
	}{
		{name: "valid string", str: "test"},
		{name: "empty string", str: "", wantErr: true},
		{name: "whitespace only", str: " \t\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, "param")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmptyString) {
				t.Errorf("validateString() error = %v, want ErrEmptyString", err)
			}
		})
	}
}

func TestValidateLearnedEntry(t *testing.T) {
	valid := createTestEntry("Água Tônica Schweppes", true)

	tests := []struct {
		entry   *model.LearnedEntry
		wantErr error
		name    string
	}{
		{name: "valid entry", entry: &valid},
		{name: "nil entry", entry: nil, wantErr: ErrNilParameter},
		{
			name: "missing key",
			entry: func() *model.LearnedEntry {
				e := valid
				e.Key = " "
				return &e
			}(),
			wantErr: ErrInvalidLearned,
		},
		{
			name: "key not normalized",
			entry: func() *model.LearnedEntry {
				e := valid
				e.Key = "agua tonica schweppes"
				return &e
			}(),
			wantErr: ErrInvalidLearned,
		},
		{
			name: "missing description",
			entry: func() *model.LearnedEntry {
				e := valid
				e.Description = ""
				return &e
			}(),
			wantErr: ErrInvalidLearned,
		},
		{
			name: "unknown origin",
			entry: func() *model.LearnedEntry {
				e := valid
				e.Origin = "GUESS"
				return &e
			}(),
			wantErr: ErrInvalidLearned,
		},
		{
			name: "negative hits",
			entry: func() *model.LearnedEntry {
				e := valid
				e.Hits = -1
				return &e
			}(),
			wantErr: ErrInvalidLearned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLearnedEntry(tt.entry)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateLearnedEntry() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateLearnedEntry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
