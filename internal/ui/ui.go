// Package ui renders resolver output for the terminal: an interactive picker
// for candidates and plain tables for candidates and providers. Nothing
// here reads remote data into a shell or a command line.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize/english"
	"golang.org/x/term"

	"vidgate/internal/provider"
	"vidgate/internal/resolve"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("selection cancelled")

var (
	accent    = lipgloss.Color("62")
	faint     = lipgloss.Color("244")
	titleBar  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(accent).Padding(0, 1)
	headerRow = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cell      = lipgloss.NewStyle().Padding(0, 1)
	dim       = lipgloss.NewStyle().Foreground(faint).Padding(0, 1)
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// choice is a list.Item for one resolved URL.
type choice struct {
	index int
	r     resolve.Resolved
}

func (c choice) Title() string {
	label := strings.ToUpper(c.r.Type.String())
	if c.r.Quality != "" {
		label += " " + c.r.Quality
	}
	return label
}

func (c choice) Description() string {
	if c.r.Provider != nil {
		return c.r.Provider.Name + " • " + c.r.URL
	}
	return c.r.URL
}

func (c choice) FilterValue() string { return c.r.URL }

type picker struct {
	list     list.Model
	choice   int
	quitting bool
	choose   key.Binding
	cancel   key.Binding
}

func newPicker(urls []resolve.Resolved) *picker {
	items := make([]list.Item, len(urls))
	for i, r := range urls {
		items[i] = choice{index: i, r: r}
	}

	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Found " + english.Plural(len(urls), "media URL", "")
	l.Styles.Title = titleBar
	l.SetShowStatusBar(false)

	return &picker{
		list:   l,
		choice: -1,
		choose: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose")),
		cancel: key.NewBinding(key.WithKeys("esc", "q", "ctrl+c"), key.WithHelp("esc", "cancel")),
	}
}

func (p *picker) Init() tea.Cmd { return nil }

func (p *picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.list.SetSize(msg.Width, msg.Height)
		return p, nil
	case tea.KeyMsg:
		if p.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, p.choose):
			if it, ok := p.list.SelectedItem().(choice); ok {
				p.choice = it.index
			}
			p.quitting = true
			return p, tea.Quit
		case key.Matches(msg, p.cancel):
			p.quitting = true
			return p, tea.Quit
		}
	}

	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

func (p *picker) View() string {
	if p.quitting {
		return ""
	}
	return p.list.View()
}

// Pick lets the user choose one of urls interactively. The picker draws on
// out so stdout stays clean for the chosen URL.
func Pick(urls []resolve.Resolved, in io.Reader, out io.Writer) (resolve.Resolved, error) {
	if len(urls) == 0 {
		return resolve.Resolved{}, fmt.Errorf("nothing to choose from")
	}
	m, err := tea.NewProgram(newPicker(urls), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen()).Run()
	if err != nil {
		return resolve.Resolved{}, fmt.Errorf("running picker: %w", err)
	}
	p := m.(*picker)
	if p.choice < 0 {
		return resolve.Resolved{}, ErrCancelled
	}
	return urls[p.choice], nil
}

// Candidates renders resolved URLs as a table, best first.
func Candidates(urls []resolve.Resolved) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		Headers("#", "TYPE", "QUALITY", "PROVIDER", "URL").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerRow
			case col == 0:
				return dim
			}
			return cell
		})
	for i, r := range urls {
		name := "-"
		if r.Provider != nil {
			name = r.Provider.Name
		}
		quality := r.Quality
		if quality == "" {
			quality = "-"
		}
		t.Row(strconv.Itoa(i+1), r.Type.String(), quality, name, r.URL)
	}
	return t.Render()
}

// Providers renders the registry table, most reliable first.
func Providers(profiles []provider.Profile) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		Headers("PROVIDER", "RELIABILITY", "HOSTS", "KNOWN ISSUES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerRow
			}
			if col == 3 {
				return dim
			}
			return cell
		})
	sorted := append([]provider.Profile(nil), profiles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Reliability > sorted[j].Reliability })
	for _, p := range sorted {
		issues := strings.Join(p.KnownIssues, "; ")
		if issues == "" {
			issues = "-"
		}
		t.Row(p.Name, fmt.Sprintf("%d/%d", p.Reliability, provider.MaxReliability), strings.Join(p.Hosts, ", "), issues)
	}
	return t.Render()
}
