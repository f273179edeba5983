package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"vidgate/internal/extract"
	"vidgate/internal/httputil"
	"vidgate/internal/media"
)

// errEncryptedSources is returned when getSources answers with an encrypted
// payload. Decrypting it needs a rotating third-party key and is not done.
var errEncryptedSources = errors.New("sources are encrypted")

var embedPrefix = regexp.MustCompile(`^embed-\d+$`)

// megacloud resolves MegaCloud/VidCloud embeds through the player's
// getSources endpoint, authenticated with the client key hidden in the page.
type megacloud struct{}

// sourcesResponse represents the JSON from the getSources endpoint.
type sourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Encrypted bool            `json:"encrypted"`
}

type source struct {
	File  string `json:"file"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

func (megacloud) Name() string        { return "megacloud" }
func (megacloud) Providers() []string { return []string{"megacloud", "vidcloud"} }

func (megacloud) Extract(ctx context.Context, page Page, fetch FetchFunc) ([]media.Candidate, error) {
	host, prefix, sourceID, err := parseEmbedURL(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing embed URL: %w", err)
	}
	origin := httputil.Origin(page.URL)

	clientKey, err := extract.ClientKey(page.HTML)
	if err != nil {
		// The key lives on the v3 player page; the caller may have handed us
		// an older embed form.
		playerURL := fmt.Sprintf("%s/%s/v3/e-1/%s?z=", origin, prefix, url.PathEscape(sourceID))
		body, ferr := fetch(ctx, playerURL, httputil.RequestOptions{Referer: page.Referer, UserAgent: page.UserAgent})
		if ferr != nil {
			return nil, fmt.Errorf("fetching player page on %s: %w", host, ferr)
		}
		if clientKey, err = extract.ClientKey(string(body)); err != nil {
			return nil, err
		}
	}

	apiURL := fmt.Sprintf("%s/%s/v3/e-1/getSources?id=%s&_k=%s",
		origin, prefix, url.QueryEscape(sourceID), url.QueryEscape(clientKey))
	body, err := fetch(ctx, apiURL, httputil.RequestOptions{
		Referer:   page.URL,
		UserAgent: page.UserAgent,
		Accept:    httputil.AcceptJSON,
		XHR:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching sources: %w", err)
	}

	var resp sourcesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing sources response: %w", err)
	}
	if resp.Encrypted {
		return nil, errEncryptedSources
	}

	var sources []source
	if err := json.Unmarshal(resp.Sources, &sources); err != nil {
		return nil, fmt.Errorf("parsing plaintext sources: %w", err)
	}

	var out []media.Candidate
	for _, s := range sources {
		abs, ok := httputil.Resolve(page.URL, s.File)
		if !ok {
			continue
		}
		kind := media.KindFromURL(abs)
		if kind == media.Unknown && strings.EqualFold(s.Type, "hls") {
			kind = media.HLS
		}
		quality := media.ParseQuality(abs)
		if quality == "" {
			quality = media.ParseQuality("/" + s.Label)
		}
		out = append(out, media.Candidate{URL: abs, Kind: kind, Quality: quality})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sources in response")
	}
	return out, nil
}

// parseEmbedURL extracts host, embed prefix and source ID from an embed URL.
// Example: https://megacloud.blog/embed-2/v3/e-1/AbCdEf?z= -> ("megacloud.blog", "embed-2", "AbCdEf")
func parseEmbedURL(embedURL string) (host, prefix, sourceID string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing URL: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", "", fmt.Errorf("empty URL path")
	}

	prefix = parts[0]
	if !embedPrefix.MatchString(prefix) {
		prefix = "embed-2"
	}

	sourceID = parts[len(parts)-1]
	if sourceID == "" || sourceID == prefix {
		return "", "", "", fmt.Errorf("could not extract source ID from %q", embedURL)
	}
	return u.Host, prefix, sourceID, nil
}
