// Package tui provides a terminal viewer for run results: the ranked user
// leaderboard, community aggregates, and the run summary.
package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"coordsight/internal/export"
	"coordsight/internal/tui/styles"
)

// Scene represents the current view.
type Scene int

const (
	SceneUsers Scene = iota
	SceneCommunities
	SceneSummary
)

var sceneNames = []string{"Users", "Communities", "Run"}

// Model is the main TUI model.
type Model struct {
	summary *export.Summary
	err     error

	scene    Scene
	cursor   int
	width    int
	height   int
	quitting bool
}

// LoadSummary reads the summary artifact from a run output directory.
func LoadSummary(dir string) (*export.Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, export.FileSummaryJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}
	var s export.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &s, nil
}

// New creates a TUI model for a loaded summary.
func New(summary *export.Summary) *Model {
	return &Model{summary: summary}
}

// Init initializes the TUI.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles all messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			m.scene = (m.scene + 1) % 3
			m.cursor = 0
		case "1":
			m.scene = SceneUsers
			m.cursor = 0
		case "2":
			m.scene = SceneCommunities
			m.cursor = 0
		case "3":
			m.scene = SceneSummary
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < m.rowCount()-1 {
				m.cursor++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m *Model) rowCount() int {
	switch m.scene {
	case SceneUsers:
		return len(m.summary.TopUsers)
	case SceneCommunities:
		return len(m.summary.TopCommunities)
	default:
		return 0
	}
}

// View renders the current scene.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render("coordsight") + "\n")
	b.WriteString(m.renderTabs() + "\n\n")

	switch m.scene {
	case SceneUsers:
		b.WriteString(m.renderUsers())
	case SceneCommunities:
		b.WriteString(m.renderCommunities())
	case SceneSummary:
		b.WriteString(m.renderSummary())
	}

	b.WriteString("\n" + styles.Help.Render("tab/1-3: switch view · j/k: move · q: quit"))
	return b.String()
}

func (m *Model) renderTabs() string {
	tabs := make([]string, len(sceneNames))
	for i, name := range sceneNames {
		if Scene(i) == m.scene {
			tabs[i] = styles.TabActive.Render(name)
		} else {
			tabs[i] = styles.TabInactive.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderUsers() string {
	if len(m.summary.TopUsers) == 0 {
		return styles.Muted.Render("no scored users in this run")
	}

	var b strings.Builder
	header := fmt.Sprintf("%-4s %-24s %-6s %8s %8s %8s", "#", "USER", "COMM", "Z_SNA", "Z_ARL", "SCORE")
	b.WriteString(styles.TableHeader.Render(header) + "\n")

	for i, u := range m.summary.TopUsers {
		comm := fmt.Sprintf("%d", u.Community)
		if u.Community < 0 {
			comm = "-"
		}
		row := fmt.Sprintf("%-4d %-24s %-6s %8.3f %8.3f %8.3f",
			i+1, truncate(u.UserID, 24), comm, u.ZSNA, u.ZARL, u.Score)

		switch {
		case i == m.cursor:
			b.WriteString(styles.TableRowSelected.Render(row))
		case u.Score >= 1.0:
			b.WriteString(styles.ScoreHigh.Render(row))
		case u.Score >= 0.5:
			b.WriteString(styles.ScoreElevated.Render(row))
		default:
			b.WriteString(styles.TableRow.Render(row))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderCommunities() string {
	if len(m.summary.TopCommunities) == 0 {
		return styles.Muted.Render("no communities in this run")
	}

	var b strings.Builder
	header := fmt.Sprintf("%-6s %8s %8s %8s %9s  %s", "COMM", "MEAN", "MAX", "MEMBERS", "DENSITY", "TOP USERS")
	b.WriteString(styles.TableHeader.Render(header) + "\n")

	for i, c := range m.summary.TopCommunities {
		row := fmt.Sprintf("%-6d %8.3f %8.3f %8d %9.3f  %s",
			c.CommunityID, c.MeanScore, c.MaxScore, c.MemberCount, c.Density,
			truncate(strings.Join(c.TopUsers, ", "), 40))
		if i == m.cursor {
			b.WriteString(styles.TableRowSelected.Render(row))
		} else {
			b.WriteString(styles.TableRow.Render(row))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderSummary() string {
	s := m.summary
	lines := []string{
		metric("Run", s.RunID),
		metric("Generated", s.GeneratedAt.Format("2006-01-02 15:04:05 MST")),
		metric("Duration", s.Duration),
		metric("Records", fmt.Sprintf("%d", s.Records)),
		metric("Users", fmt.Sprintf("%d", s.Users)),
		metric("Clusters", fmt.Sprintf("%d", s.Clusters)),
		metric("Rules", fmt.Sprintf("%d", s.Rules)),
		metric("Communities", fmt.Sprintf("%d", s.Communities)),
		metric("Graph", fmt.Sprintf("%d nodes / %d edges (density %.4f)",
			s.GraphStats.Nodes, s.GraphStats.Edges, s.GraphStats.Density)),
	}
	if s.RulesTruncated {
		lines = append(lines, styles.ScoreElevated.Render("rule mining hit its budget; counts are a lower bound"))
	}
	return styles.Box.Render(strings.Join(lines, "\n"))
}

func metric(label, value string) string {
	return styles.MetricLabel.Render(fmt.Sprintf("%-12s", label)) + " " + styles.MetricValue.Render(value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
