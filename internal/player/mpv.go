package player

import "strings"

type mpv struct{}

func (mpv) Name() string { return "mpv" }

func (mpv) Args(t Target) []string { return mpvArgs(t) }

// mpvArgs is shared with players that accept mpv's flags.
func mpvArgs(t Target) []string {
	args := []string{"--really-quiet"}
	if t.Title != "" {
		args = append(args, "--force-media-title="+t.Title)
	}
	if t.UserAgent != "" {
		args = append(args, "--user-agent="+t.UserAgent)
	}
	if t.Referer != "" {
		// mpv splits this option on commas.
		args = append(args, "--http-header-fields=Referer: "+strings.ReplaceAll(t.Referer, ",", "%2C"))
	}
	// "--" keeps a URL starting with "-" from being read as a flag.
	return append(args, "--", t.URL)
}
