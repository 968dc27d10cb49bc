package tui

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"coordsight/internal/export"
	"coordsight/internal/scoring"
)

func fixtureSummary() *export.Summary {
	return &export.Summary{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:    "1.5s",
		Records:     100,
		Users:       3,
		Clusters:    1,
		Rules:       2,
		Communities: 1,
		TopUsers: []scoring.UserScore{
			{UserID: "acct_a", Community: 0, ZSNA: 1.2, Score: 1.1},
			{UserID: "acct_b", Community: 0, ZSNA: 0.4, Score: 0.6},
			{UserID: "acct_z", Community: -1, ZSNA: -1.0, Score: -0.4},
		},
		TopCommunities: []scoring.CommunityScore{
			{CommunityID: 0, MeanScore: 0.85, MaxScore: 1.1, MemberCount: 2, Density: 1.0, TopUsers: []string{"acct_a", "acct_b"}},
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestViewRendersLeaderboard(t *testing.T) {
	m := New(fixtureSummary())
	view := m.View()
	if !strings.Contains(view, "acct_a") {
		t.Error("view should list the top user")
	}
	if !strings.Contains(view, "USER") {
		t.Error("view should render the table header")
	}
}

func TestSceneSwitching(t *testing.T) {
	m := New(fixtureSummary())

	next, _ := m.Update(keyMsg("2"))
	m = next.(*Model)
	if m.scene != SceneCommunities {
		t.Fatalf("scene = %d, want communities", m.scene)
	}
	if !strings.Contains(m.View(), "DENSITY") {
		t.Error("communities view should render the community table")
	}

	next, _ = m.Update(keyMsg("3"))
	m = next.(*Model)
	if !strings.Contains(m.View(), "run-1") {
		t.Error("summary view should show the run id")
	}

	next, _ = m.Update(keyMsg("tab"))
	m = next.(*Model)
	if m.scene != SceneUsers {
		t.Errorf("tab from summary should wrap to users, got %d", m.scene)
	}
}

func TestCursorBounds(t *testing.T) {
	m := New(fixtureSummary())

	next, _ := m.Update(keyMsg("up"))
	m = next.(*Model)
	if m.cursor != 0 {
		t.Errorf("cursor = %d, should not go above 0", m.cursor)
	}

	for i := 0; i < 10; i++ {
		next, _ = m.Update(keyMsg("down"))
		m = next.(*Model)
	}
	if m.cursor != 2 {
		t.Errorf("cursor = %d, should stop at last row", m.cursor)
	}
}

func TestQuit(t *testing.T) {
	m := New(fixtureSummary())
	next, cmd := m.Update(keyMsg("q"))
	m = next.(*Model)
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if m.View() != "" {
		t.Error("view should be empty when quitting")
	}
}

func TestLoadSummary(t *testing.T) {
	dir := t.TempDir()
	data, err := json.Marshal(fixtureSummary())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, export.FileSummaryJSON), data, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSummary(dir)
	if err != nil {
		t.Fatalf("LoadSummary() error = %v", err)
	}
	if s.RunID != "run-1" || len(s.TopUsers) != 3 {
		t.Errorf("summary = %+v", s)
	}

	if _, err := LoadSummary(t.TempDir()); err == nil {
		t.Error("LoadSummary() on empty dir should fail")
	}
}
