package store

import (
	"context"
	"testing"
	"time"

	"demosync/internal/demo"
)

func TestReadEnvelope(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantHeadline string
		wantErr      bool
	}{
		{
			name:         "enveloped content",
			raw:          `{"version":1,"demoId":"doc-1","name":"launch","data":{"overview":{"headline":"wrapped"}}}`,
			wantHeadline: "wrapped",
		},
		{
			name:         "bare body from older files",
			raw:          `{"overview":{"headline":"bare"}}`,
			wantHeadline: "bare",
		},
		{
			name:    "not json",
			raw:     `<!doctype html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := readEnvelope([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if body.Overview.Headline != tt.wantHeadline {
				t.Errorf("Headline = %q, want %q", body.Overview.Headline, tt.wantHeadline)
			}
		})
	}
}

func TestParseRemoteTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"rfc3339 with millis", "2024-01-15T10:30:00.000Z", want},
		{"rfc3339 without millis", "2024-01-15T10:30:00Z", want},
		{"unparsable compares as very old", "yesterday", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRemoteTime(tt.in); got != tt.want {
				t.Errorf("parseRemoteTime(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestLocalBackend_CheckModifiedNeverReportsChange(t *testing.T) {
	f, _ := newTestFacade(t)

	b, err := f.Backend(demo.KindLocal)
	if err != nil {
		t.Fatalf("Backend() error: %v", err)
	}

	check, err := b.CheckModified(context.Background(), &demo.Document{ID: "doc-1", StorageKind: demo.KindLocal}, 0)
	if err != nil {
		t.Fatalf("CheckModified() error: %v", err)
	}
	if check.Modified || check.Trashed {
		t.Errorf("CheckModified() = %+v, want no change ever", check)
	}
}
