package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidgate/internal/media"
	"vidgate/internal/provider"
	"vidgate/internal/resolve"
)

var sample = []resolve.Resolved{
	{Type: media.HLS, URL: "https://cdn.example.com/master.m3u8", Quality: "1080p"},
	{Type: media.MP4, URL: "https://cdn.example.com/v.mp4", Provider: &provider.Profile{Name: "mp4upload"}},
}

func TestPickerChoosesHighlightedItem(t *testing.T) {
	p := newPicker(sample)

	_, _ = p.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	assert.Equal(t, 1, p.choice)
	assert.Empty(t, p.View())
}

func TestPickerCancel(t *testing.T) {
	p := newPicker(sample)

	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEsc})

	require.NotNil(t, cmd)
	assert.Equal(t, -1, p.choice)
}

func TestChoiceLabels(t *testing.T) {
	c := choice{r: sample[0]}
	assert.Equal(t, "HLS 1080p", c.Title())
	assert.Equal(t, "https://cdn.example.com/master.m3u8", c.Description())

	c = choice{r: sample[1]}
	assert.Equal(t, "MP4", c.Title())
	assert.Equal(t, "mp4upload • https://cdn.example.com/v.mp4", c.Description())
}

func TestCandidatesTable(t *testing.T) {
	out := Candidates(sample)
	for _, want := range []string{"TYPE", "hls", "1080p", "mp4upload", "https://cdn.example.com/v.mp4"} {
		assert.Contains(t, out, want)
	}
}

func TestProvidersTableSortedByReliability(t *testing.T) {
	out := Providers([]provider.Profile{
		{Name: "low", Hosts: []string{"low.example"}, Reliability: 2},
		{Name: "high", Hosts: []string{"high.example"}, Reliability: 9, KnownIssues: []string{"rotates domains"}},
	})

	assert.Contains(t, out, "9/10")
	assert.Contains(t, out, "rotates domains")
	assert.Less(t, strings.Index(out, "high"), strings.Index(out, "low"))
}
