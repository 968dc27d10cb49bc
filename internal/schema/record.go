// Package schema defines the canonical engagement record for Coordsight.
// All collected records are normalized to this structure before analysis.
package schema

import (
	"fmt"
	"time"
)

// Record represents one normalized engagement event: a comment on a video,
// a post in a conversation. Records are immutable once created.
type Record struct {
	// Required fields
	UserID    string    `json:"user_id" validate:"required,max=256"`
	GroupID   string    `json:"group_id" validate:"required,max=256"`
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Optional fields
	Text     string   `json:"text,omitempty" validate:"max=65536"`
	Entities Entities `json:"entities"`
	Platform Platform `json:"platform,omitempty" validate:"omitempty,oneof=youtube x unknown"`
}

// Entities holds the typed tokens extracted upstream from a record's content.
type Entities struct {
	Domains  []string `json:"domains,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	Channel  string   `json:"channel,omitempty"`
}

// IsEmpty reports whether the record carries no entity tokens at all.
func (e Entities) IsEmpty() bool {
	return len(e.Domains) == 0 && len(e.Hashtags) == 0 && len(e.Mentions) == 0 && e.Channel == ""
}

// Platform identifies the source platform of a record.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformX       Platform = "x"
	PlatformUnknown Platform = "unknown"
)

// IsValid checks if the platform is a known value.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformYouTube, PlatformX, PlatformUnknown:
		return true
	}
	return false
}

// DedupeKey returns a stable identity for duplicate suppression.
// Two records with the same key are the same engagement event.
func (r *Record) DedupeKey() string {
	return fmt.Sprintf("%s\x1f%s\x1f%d\x1f%s", r.UserID, r.GroupID, r.Timestamp.UnixNano(), r.Text)
}

// Items returns the record's entity tokens in the typed token form used by
// the rule miner: DOM:, TAG:, MENT:, CH: prefixed values.
func (r *Record) Items() []string {
	items := make([]string, 0, len(r.Entities.Domains)+len(r.Entities.Hashtags)+len(r.Entities.Mentions)+1)
	for _, d := range r.Entities.Domains {
		if d != "" {
			items = append(items, "DOM:"+d)
		}
	}
	for _, t := range r.Entities.Hashtags {
		if t != "" {
			items = append(items, "TAG:"+t)
		}
	}
	for _, m := range r.Entities.Mentions {
		if m != "" {
			items = append(items, "MENT:"+m)
		}
	}
	if r.Entities.Channel != "" {
		items = append(items, "CH:"+r.Entities.Channel)
	}
	return items
}

// SchemaVersionCurrent is the current version of the record schema.
const SchemaVersionCurrent = "1.0.0"
