package ingest

import (
	"context"
	"strings"
	"testing"
	"time"
)

const sampleJSONL = `{"user_id":"acct_001","group_id":"vid_1","timestamp":"2024-03-01T10:00:00Z","text":"vote now","entities":{"hashtags":["vote"]}}
{"user_id":"acct_002","group_id":"vid_1","timestamp":"2024-03-01T10:20:00Z","text":"vote now"}
not json at all
{"user_id":"","group_id":"vid_1","timestamp":"2024-03-01T10:30:00Z","text":"missing user"}
{"user_id":"acct_001","group_id":"vid_1","timestamp":"2024-03-01T10:00:00Z","text":"vote now"}
{"user_id":"acct_003","group_id":"vid_2","timestamp":"2024-06-01T09:00:00Z","text":"out of window"}`

func TestReaderRead(t *testing.T) {
	r := NewReader(ReaderConfig{
		WindowStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}, nil)

	records, stats, err := r.Read(context.Background(), strings.NewReader(sampleJSONL))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if stats.Total != 6 {
		t.Errorf("Total = %d, want 6", stats.Total)
	}
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2 (bad json + missing user)", stats.Malformed)
	}
	if stats.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", stats.Duplicates)
	}
	if stats.OutOfWindow != 1 {
		t.Errorf("OutOfWindow = %d, want 1", stats.OutOfWindow)
	}
	if stats.Kept != 2 || len(records) != 2 {
		t.Fatalf("Kept = %d, len(records) = %d, want 2", stats.Kept, len(records))
	}
	if records[0].UserID != "acct_001" || records[1].UserID != "acct_002" {
		t.Errorf("unexpected kept records: %+v", records)
	}
}

func TestReaderNoWindow(t *testing.T) {
	r := NewReader(ReaderConfig{}, nil)
	records, stats, err := r.Read(context.Background(), strings.NewReader(sampleJSONL))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if stats.OutOfWindow != 0 {
		t.Errorf("OutOfWindow = %d, want 0 when no window set", stats.OutOfWindow)
	}
	if len(records) != 3 {
		t.Errorf("len(records) = %d, want 3", len(records))
	}
}

func TestReaderCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader(ReaderConfig{}, nil)
	_, _, err := r.Read(ctx, strings.NewReader(sampleJSONL))
	if err == nil {
		t.Error("Read() with canceled context should return an error")
	}
}

func TestYouTubeNormalize(t *testing.T) {
	c := YouTubeComment{
		CommentID:   "c1",
		AuthorID:    "acct_001",
		VideoID:     "vid_9",
		ChannelID:   "chan_news",
		PublishedAt: "2024-03-01T10:00:00Z",
		Text:        "watch this https://Example.com/x?track=1 #Breaking @amplifier",
	}
	rec, err := c.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.UserID != "acct_001" || rec.GroupID != "vid_9" {
		t.Errorf("got user %q group %q", rec.UserID, rec.GroupID)
	}
	if rec.Platform != "youtube" {
		t.Errorf("Platform = %q, want youtube", rec.Platform)
	}
	if rec.Entities.Channel != "chan_news" {
		t.Errorf("Channel = %q, want chan_news", rec.Entities.Channel)
	}
	if len(rec.Entities.Domains) != 1 || rec.Entities.Domains[0] != "example.com" {
		t.Errorf("Domains = %v, want [example.com]", rec.Entities.Domains)
	}
	if len(rec.Entities.Hashtags) != 1 || rec.Entities.Hashtags[0] != "breaking" {
		t.Errorf("Hashtags = %v, want [breaking]", rec.Entities.Hashtags)
	}
	if len(rec.Entities.Mentions) != 1 || rec.Entities.Mentions[0] != "amplifier" {
		t.Errorf("Mentions = %v, want [amplifier]", rec.Entities.Mentions)
	}
}

func TestXNormalize(t *testing.T) {
	tests := []struct {
		name      string
		post      XPost
		wantGroup string
		wantErr   bool
	}{
		{
			name: "thread reply",
			post: XPost{
				TweetID:        "t2",
				AuthorID:       "acct_002",
				ConversationID: "t1",
				CreatedAt:      "2024-03-01T11:00:00Z",
				Text:           "same here",
			},
			wantGroup: "t1",
		},
		{
			name: "standalone post anchors its own thread",
			post: XPost{
				TweetID:   "t5",
				AuthorID:  "acct_003",
				CreatedAt: "2024-03-01T11:05:00Z",
				Text:      "original",
			},
			wantGroup: "t5",
		},
		{
			name:    "missing author",
			post:    XPost{TweetID: "t6", CreatedAt: "2024-03-01T11:05:00Z"},
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			post:    XPost{TweetID: "t7", AuthorID: "a", CreatedAt: "yesterday"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := tt.post.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Error("Normalize() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if rec.GroupID != tt.wantGroup {
				t.Errorf("GroupID = %q, want %q", rec.GroupID, tt.wantGroup)
			}
			if rec.Platform != "x" {
				t.Errorf("Platform = %q, want x", rec.Platform)
			}
		})
	}
}

func TestXNormalizePrefersAPIEntities(t *testing.T) {
	p := XPost{
		TweetID:   "t8",
		AuthorID:  "acct_004",
		CreatedAt: "2024-03-01T12:00:00Z",
		Text:      "#ignored @ignored",
		Hashtags:  []string{"#FromAPI"},
		Mentions:  []string{"@target"},
	}
	rec, err := p.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(rec.Entities.Hashtags) != 1 || rec.Entities.Hashtags[0] != "fromapi" {
		t.Errorf("Hashtags = %v, want [fromapi]", rec.Entities.Hashtags)
	}
	if len(rec.Entities.Mentions) != 1 || rec.Entities.Mentions[0] != "target" {
		t.Errorf("Mentions = %v, want [target]", rec.Entities.Mentions)
	}
}

func TestExtractDomains(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single url", "see https://news.example.com/a", []string{"news.example.com"}},
		{"strips www and lowercases", "http://WWW.Example.COM/path", []string{"example.com"}},
		{"dedupes", "https://a.com/x and https://a.com/y", []string{"a.com"}},
		{"trailing punctuation", "read https://a.com/story.", []string{"a.com"}},
		{"no urls", "nothing to see", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDomains(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractDomains(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ExtractDomains(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadNLPScoresMissingFile(t *testing.T) {
	scores, err := LoadNLPScores("/nonexistent/nlp.jsonl")
	if err != nil {
		t.Fatalf("LoadNLPScores() error = %v, want nil for missing file", err)
	}
	if scores != nil {
		t.Errorf("scores = %v, want nil", scores)
	}
}
