package player

// mpvCompatible covers frontends such as iina and celluloid that pass
// mpv-style flags through.
type mpvCompatible struct {
	name string
}

func (g mpvCompatible) Name() string { return g.name }

func (g mpvCompatible) Args(t Target) []string { return mpvArgs(t) }
