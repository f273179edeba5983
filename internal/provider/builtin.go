package provider

// builtin is the shipped provider table. Scores reflect how often the
// extraction path for a host produces a playable stream.
var builtin = []Profile{
	{
		Name:          "mp4upload",
		Hosts:         []string{"mp4upload.com"},
		Reliability:   8,
		KnownPatterns: []string{`player.src({ src: "…mp4" })`},
	},
	{
		Name:          "okru",
		Hosts:         []string{"ok.ru", "odnoklassniki.ru"},
		Reliability:   8,
		KnownPatterns: []string{`data-options JSON with hlsManifestUrl`},
	},
	{
		Name:          "streamtape",
		Hosts:         []string{"streamtape", "strtape.cloud", "strtpe.link", "stape.fun"},
		Reliability:   7,
		KnownPatterns: []string{`robotlink innerHTML + substring token`, `/get_video?id=…&token=…`},
		KnownIssues:   []string{"token split across two DOM writes"},
	},
	{
		Name:          "voe",
		Hosts:         []string{"voe", "voe-unblock.com"},
		Reliability:   7,
		KnownPatterns: []string{`'hls': '…m3u8'`, `atob-wrapped source`},
		KnownIssues:   []string{"redirects to rotating mirror domains"},
	},
	{
		Name:          "megacloud",
		Hosts:         []string{"megacloud", "megacloud.blog", "megacloud.tv", "rabbitstream.net"},
		Reliability:   7,
		KnownPatterns: []string{`/embed-N/v3/e-1/getSources?id=&_k=`},
		KnownIssues:   []string{"client key rotates between page loads", "sources may be encrypted"},
	},
	{
		Name:          "vidcloud",
		Hosts:         []string{"vidcloud", "vidcloud9.com", "dokicloud.one"},
		Reliability:   6,
		KnownPatterns: []string{`/ajax/embed/getSources?id=`},
	},
	{
		Name:          "mixdrop",
		Hosts:         []string{"mixdrop", "mixdrp", "mdbekjwqa.pw", "mdy48tn97.com"},
		Reliability:   6,
		KnownPatterns: []string{`MDCore.wurl inside packed eval`},
		KnownIssues:   []string{"protocol-relative wurl"},
	},
	{
		Name:          "filemoon",
		Hosts:         []string{"filemoon", "kerapoxy.cc", "moonmov.pro"},
		Reliability:   6,
		KnownPatterns: []string{`jwplayer setup inside packed eval`},
	},
	{
		Name:          "vidmoly",
		Hosts:         []string{"vidmoly"},
		Reliability:   6,
		KnownPatterns: []string{`sources: [{file:"…m3u8"}]`},
	},
	{
		Name:          "streamwish",
		Hosts:         []string{"streamwish", "wishembed.pro", "swdyu.com", "playerwish.com"},
		Reliability:   6,
		KnownPatterns: []string{`file:"…m3u8" inside packed eval`},
	},
	{
		Name:          "dood",
		Hosts:         []string{"dood", "doodstream", "d0o0d.com", "ds2play.com", "dooood.com"},
		Reliability:   5,
		KnownPatterns: []string{`/pass_md5/…`},
		KnownIssues:   []string{"pass_md5 token requires a follow-up request", "aggressive anti-bot checks"},
	},
	{
		Name:          "vidoza",
		Hosts:         []string{"vidoza"},
		Reliability:   5,
		KnownPatterns: []string{`<source src="…mp4">`},
	},
	{
		Name:          "supervideo",
		Hosts:         []string{"supervideo"},
		Reliability:   5,
		KnownPatterns: []string{`packed eval with sources:[{file:…}]`},
	},
	{
		Name:        "upstream",
		Hosts:       []string{"upstream.to"},
		Reliability: 4,
		KnownIssues: []string{"frequent takedowns"},
	},
}

// Default returns a registry preloaded with the built-in provider table.
func Default() *Registry {
	return NewRegistry(builtin...)
}
