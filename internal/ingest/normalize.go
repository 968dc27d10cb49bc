package ingest

import (
	"fmt"
	"strings"
	"time"

	"coordsight/internal/schema"
)

// timeLayouts are accepted timestamp formats, tried in order. Platform APIs
// disagree on fractional seconds and zone suffixes.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// YouTubeComment is a raw comment row as delivered by the YouTube collector.
type YouTubeComment struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	VideoID     string `json:"video_id"`
	ChannelID   string `json:"channel_id"`
	PublishedAt string `json:"published_at"`
	Text        string `json:"text"`
}

// Normalize maps a raw YouTube comment onto the platform-neutral record
// shape. The video is the discussion group.
func (c YouTubeComment) Normalize() (schema.Record, error) {
	if c.AuthorID == "" || c.VideoID == "" {
		return schema.Record{}, fmt.Errorf("youtube comment %q missing author or video", c.CommentID)
	}
	ts, err := parseTimestamp(c.PublishedAt)
	if err != nil {
		return schema.Record{}, fmt.Errorf("youtube comment %q: %w", c.CommentID, err)
	}
	return schema.Record{
		UserID:    c.AuthorID,
		GroupID:   c.VideoID,
		Timestamp: ts,
		Text:      c.Text,
		Platform:  schema.PlatformYouTube,
		Entities: schema.Entities{
			Domains:  ExtractDomains(c.Text),
			Hashtags: ExtractHashtags(c.Text),
			Mentions: ExtractMentions(c.Text),
			Channel:  c.ChannelID,
		},
	}, nil
}

// XPost is a raw post row as delivered by the X collector.
type XPost struct {
	TweetID        string   `json:"tweet_id"`
	AuthorID       string   `json:"author_id"`
	ConversationID string   `json:"conversation_id"`
	CreatedAt      string   `json:"created_at"`
	Text           string   `json:"text"`
	Hashtags       []string `json:"hashtags"`
	Mentions       []string `json:"mentions"`
}

// Normalize maps a raw X post onto the platform-neutral record shape. The
// conversation thread is the discussion group; a standalone post anchors its
// own thread.
func (p XPost) Normalize() (schema.Record, error) {
	if p.AuthorID == "" {
		return schema.Record{}, fmt.Errorf("x post %q missing author", p.TweetID)
	}
	group := p.ConversationID
	if group == "" {
		group = p.TweetID
	}
	if group == "" {
		return schema.Record{}, fmt.Errorf("x post by %q has no conversation or tweet id", p.AuthorID)
	}
	ts, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		return schema.Record{}, fmt.Errorf("x post %q: %w", p.TweetID, err)
	}

	// The X API already splits out entities; fall back to text extraction
	// for collectors that do not populate them.
	hashtags := normalizeTags(p.Hashtags)
	if len(hashtags) == 0 {
		hashtags = ExtractHashtags(p.Text)
	}
	mentions := normalizeTags(p.Mentions)
	if len(mentions) == 0 {
		mentions = ExtractMentions(p.Text)
	}

	return schema.Record{
		UserID:    p.AuthorID,
		GroupID:   group,
		Timestamp: ts,
		Text:      p.Text,
		Platform:  schema.PlatformX,
		Entities: schema.Entities{
			Domains:  ExtractDomains(p.Text),
			Hashtags: hashtags,
			Mentions: mentions,
		},
	}, nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimLeft(strings.TrimSpace(t), "#@"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
