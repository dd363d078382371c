package lower

// trace logs a structured, operator-facing trace line for a declaration
// about to be lowered. This never participates in error reporting --
// lowering failures are always returned as error values -- it exists
// purely so a `wgslowc --verbose` run can show what the pass is
// doing declaration by declaration.
func (g *GlobalContext) trace(what string, fields map[string]any) {
	if g.Log == nil {
		return
	}
	entry := g.Log
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Debug(what)
}

// warn logs an operator-facing warning that does not fail lowering (an
// unused local variable, a context demotion that discards constness).
func (s *StatementContext) warn(what string, fields map[string]any) {
	if s.Log == nil {
		return
	}
	entry := s.Log
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Warn(what)
}
