package dedupe

// Option configures the deduper.
type Option func(*window)

// WithMaxSize bounds how many ids are remembered. Zero or negative keeps
// every id.
func WithMaxSize(maxSize int) Option {
	return func(d *window) {
		d.maxSize = maxSize
	}
}
