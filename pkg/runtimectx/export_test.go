package runtimectx

// Reset exposes reset to tests
func (h *Holder) Reset() error {
	return h.reset()
}
