package drpc

// log emits a structured debug line via cfg.Logger, if one was configured
// with WithLogger. A nil Logger (the default) makes this a no-op.
func (e *Engine) log(msg string, keyvals ...any) {
	if e.cfg.Logger == nil {
		return
	}
	e.cfg.Logger.Debug(msg, keyvals...)
}
