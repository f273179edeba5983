package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vidgate/internal/httputil"
	"vidgate/internal/player"
	"vidgate/internal/resolve"
	"vidgate/internal/ui"
)

var (
	flagReferer    string
	flagUserAgent  string
	flagExhaustive bool
	flagNoPicker   bool
	flagPlay       string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <embed-url>",
	Short: "Resolve an embed page to ranked media URLs",
	Long: `Fetches the embed page and runs the extraction chain (page, inline
scripts, provider heuristics, iframes and scripts, API probes) until media
URLs are found. On a terminal the candidates open in a picker and the chosen
URL is printed; otherwise every candidate is printed, best first.`,
	Args: cobra.ExactArgs(1),
	RunE: resolveRun,
}

func init() {
	resolveCmd.Flags().StringVarP(&flagReferer, "referer", "r", "", "Referer sent with the page fetch and carried into proxy links")
	resolveCmd.Flags().StringVar(&flagUserAgent, "ua", "", "User-Agent override")
	resolveCmd.Flags().BoolVarP(&flagExhaustive, "exhaustive", "e", false, "Run every stage and merge the results")
	resolveCmd.Flags().BoolVar(&flagNoPicker, "no-picker", false, "Print the table instead of opening the picker")
	resolveCmd.Flags().StringVarP(&flagPlay, "play", "p", "", "Open the chosen URL in a player: mpv | vlc | iina | celluloid")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	r := newResolver(newClient(), registry(), nil)
	res := r.Resolve(cmd.Context(), args[0], resolve.Options{
		Referer:    flagReferer,
		UserAgent:  flagUserAgent,
		Debug:      cfg.Debug,
		Exhaustive: flagExhaustive,
	})

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		if !res.OK {
			return fmt.Errorf("%s", res.Message)
		}
		return nil
	}

	if !res.OK {
		return fmt.Errorf("%s (%s)", res.Message, res.Reason)
	}

	interactive := !flagNoPicker && ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout)
	if !interactive && flagPlay == "" {
		fmt.Println(ui.Candidates(res.URLs))
		return nil
	}

	// Without a terminal the best-ranked URL is played.
	chosen := res.URLs[0]
	if interactive {
		var err error
		chosen, err = ui.Pick(res.URLs, os.Stdin, os.Stderr)
		if errors.Is(err, ui.ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	if flagPlay == "" {
		fmt.Println(chosen.URL)
		return nil
	}
	return playChosen(cmd, args[0], chosen)
}

func playChosen(cmd *cobra.Command, pageURL string, chosen resolve.Resolved) error {
	p := player.New(flagPlay)
	if !player.Available(p) {
		return fmt.Errorf("%s not found in PATH", p.Name())
	}

	// Embed hosts usually check that the stream is requested from their page.
	referer := flagReferer
	if referer == "" {
		referer = pageURL
	}
	ua := flagUserAgent
	if ua == "" {
		ua = cfg.UserAgent
	}
	if ua == "" {
		ua = httputil.DefaultUserAgent
	}

	logger.WithField("player", p.Name()).WithField("url", chosen.URL).Debug("starting player")
	return player.Play(cmd.Context(), p, player.Target{
		URL:       chosen.URL,
		Title:     pageURL,
		Referer:   referer,
		UserAgent: ua,
	})
}
