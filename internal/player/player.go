// Package player hands a resolved stream to an external media player.
// Players are started with exec.Command and an explicit argument slice, so
// nothing taken from a page is ever interpreted by a shell.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Target is what a player needs to open a stream: hosts that check the
// Referer or the User-Agent reject bare requests.
type Target struct {
	URL       string
	Title     string
	Referer   string
	UserAgent string
}

// Player launches one external player.
type Player interface {
	// Name returns the binary name.
	Name() string
	// Args builds the command line for t.
	Args(t Target) []string
}

// New returns the player for name; unknown names get mpv.
func New(name string) Player {
	switch name {
	case "vlc":
		return vlc{}
	case "iina", "celluloid":
		return mpvCompatible{name: name}
	default:
		return mpv{}
	}
}

// Available reports whether p's binary is on PATH.
func Available(p Player) bool {
	_, err := exec.LookPath(p.Name())
	return err == nil
}

// Play runs p on t and waits for it to exit. A non-zero exit is treated as
// the user closing the player.
func Play(ctx context.Context, p Player, t Target) error {
	path, err := exec.LookPath(p.Name())
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", p.Name(), err)
	}

	cmd := exec.CommandContext(ctx, path, p.Args(t)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("running %s: %w", p.Name(), err)
	}
	return nil
}
