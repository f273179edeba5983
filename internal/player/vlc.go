package player

type vlc struct{}

func (vlc) Name() string { return "vlc" }

func (vlc) Args(t Target) []string {
	args := []string{"--play-and-exit"}
	if t.Title != "" {
		args = append(args, "--meta-title", t.Title)
	}
	if t.Referer != "" {
		args = append(args, "--http-referrer", t.Referer)
	}
	if t.UserAgent != "" {
		args = append(args, "--http-user-agent", t.UserAgent)
	}
	return append(args, "--", t.URL)
}
