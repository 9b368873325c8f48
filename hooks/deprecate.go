package hooks

type deprecation struct {
	replacement string
	warned      bool
}

// Deprecate redirects callbacks registered under old to replacement.
// The first registration under old logs a warning.
func (r *Registry) Deprecate(old, replacement string) {
	if old == "" || old == replacement {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deprecated[old] = deprecation{replacement: replacement}
	if moved, ok := r.hooks[old]; ok {
		for _, e := range moved {
			e.name = replacement
		}
		r.hooks[replacement] = append(r.hooks[replacement], moved...)
		delete(r.hooks, old)
	}
}

// resolve follows deprecations for a name being registered.
func (r *Registry) resolve(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{}
	for {
		d, ok := r.deprecated[name]
		if !ok || seen[name] {
			return name
		}
		seen[name] = true
		if !d.warned {
			d.warned = true
			r.deprecated[name] = d
			r.logger.Warn("hook is deprecated", "hook", name, "replacement", d.replacement)
		}
		name = d.replacement
	}
}
