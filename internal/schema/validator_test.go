package schema

import (
	"strings"
	"testing"
	"time"
)

func validRecord() *Record {
	return &Record{
		UserID:    "u-1001",
		GroupID:   "vid-42",
		Timestamp: time.Now().UTC().Add(-time.Hour),
		Text:      "great video",
		Entities: Entities{
			Domains:  []string{"example.com"},
			Hashtags: []string{"news"},
			Channel:  "ch-9",
		},
		Platform: PlatformYouTube,
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		modify  func(*Record)
		wantErr bool
	}{
		{
			name:    "valid record",
			modify:  func(r *Record) {},
			wantErr: false,
		},
		{
			name:    "missing user_id",
			modify:  func(r *Record) { r.UserID = "" },
			wantErr: true,
		},
		{
			name:    "missing group_id",
			modify:  func(r *Record) { r.GroupID = "" },
			wantErr: true,
		},
		{
			name:    "zero timestamp",
			modify:  func(r *Record) { r.Timestamp = time.Time{} },
			wantErr: true,
		},
		{
			name:    "timestamp far in future",
			modify:  func(r *Record) { r.Timestamp = time.Now().UTC().Add(48 * time.Hour) },
			wantErr: true,
		},
		{
			name:    "empty text is allowed",
			modify:  func(r *Record) { r.Text = "" },
			wantErr: false,
		},
		{
			name:    "no entities is allowed",
			modify:  func(r *Record) { r.Entities = Entities{} },
			wantErr: false,
		},
		{
			name:    "invalid platform",
			modify:  func(r *Record) { r.Platform = "myspace" },
			wantErr: true,
		},
		{
			name:    "oversized text",
			modify:  func(r *Record) { r.Text = strings.Repeat("a", 65537) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.modify(r)
			err := v.Validate(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_MaxAge(t *testing.T) {
	v := NewValidatorWithConfig(ValidatorConfig{
		MaxAge:    time.Hour,
		MaxFuture: time.Hour,
	})

	r := validRecord()
	r.Timestamp = time.Now().UTC().Add(-2 * time.Hour)
	if err := v.Validate(r); err == nil {
		t.Error("expected error for record older than max age")
	}
}

func TestRecord_DedupeKey(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a := &Record{UserID: "u1", GroupID: "g1", Timestamp: ts, Text: "hello"}
	b := &Record{UserID: "u1", GroupID: "g1", Timestamp: ts, Text: "hello"}
	c := &Record{UserID: "u1", GroupID: "g1", Timestamp: ts, Text: "hello!"}

	if a.DedupeKey() != b.DedupeKey() {
		t.Error("identical records must share a dedupe key")
	}
	if a.DedupeKey() == c.DedupeKey() {
		t.Error("records with different text must not share a dedupe key")
	}
}

func TestRecord_Items(t *testing.T) {
	r := validRecord()
	items := r.Items()

	want := map[string]bool{
		"DOM:example.com": true,
		"TAG:news":        true,
		"CH:ch-9":         true,
	}
	if len(items) != len(want) {
		t.Fatalf("Items() = %v, want %d items", items, len(want))
	}
	for _, it := range items {
		if !want[it] {
			t.Errorf("unexpected item %q", it)
		}
	}

	empty := &Record{UserID: "u", GroupID: "g", Timestamp: time.Now()}
	if len(empty.Items()) != 0 {
		t.Errorf("record without entities should produce no items, got %v", empty.Items())
	}
}
