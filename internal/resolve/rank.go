package resolve

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"vidgate/internal/media"
	"vidgate/internal/provider"
	"vidgate/internal/proxy"
)

type ranked struct {
	Resolved
	reliability int
}

// finish joins the collected candidates with provider profiles, builds the
// proxy links and sorts: HLS, MP4, WebM, DASH, then everything else; within
// a type higher quality first, then higher provider reliability. Ties keep
// discovery order.
func (x *run) finish() *Result {
	pageProfile := x.r.registry.Lookup(x.page.URL)
	link := proxy.Link{Path: x.r.proxyPath, Referer: x.opts.Referer, Rewrite: true}

	items := lo.Map(x.found, func(c media.Candidate, _ int) ranked {
		p := x.r.registry.Lookup(c.URL)
		if p == nil {
			p = pageProfile
		}
		rel := 0
		if p != nil {
			rel = p.Reliability
		}
		return ranked{
			Resolved: Resolved{
				Type:       c.Kind,
				URL:        c.URL,
				ProxiedURL: link.For(c.URL),
				Quality:    c.Quality,
				Provider:   p,
			},
			reliability: rel,
		}
	})

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := a.Type.SortRank(), b.Type.SortRank(); ra != rb {
			return ra < rb
		}
		if qa, qb := media.QualityValue(a.Quality), media.QualityValue(b.Quality); qa != qb {
			return qa > qb
		}
		return a.reliability > b.reliability
	})

	res := &Result{
		OK:      true,
		URLs:    make([]Resolved, 0, len(items)),
		Message: fmt.Sprintf("found %d media URL(s)", len(items)),
	}
	for _, it := range items {
		res.URLs = append(res.URLs, it.Resolved)
		x.debug.Candidates = append(x.debug.Candidates, CandidateDebug{
			URL:         it.URL,
			Provider:    profileName(it.Provider),
			Reliability: it.reliability,
		})
	}
	return res
}

func profileName(p *provider.Profile) string {
	if p == nil {
		return ""
	}
	return p.Name
}
