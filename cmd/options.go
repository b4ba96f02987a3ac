package cmd

// Options holds the shared command-line options for the scout CLI.
type Options struct {
	Since     string // Scan window, e.g. "1w", "30d"; empty = full scan
	StateFile string // Override the delivered-issue store path (file backend)
	Verbosity int
	DryRun    bool // Analyze but do not deliver or mark seen
	Digest    bool // Force the per-run summary card on
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// NewOptions creates a new Options with defaults and applies any provided options.
func NewOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithSince sets the scan window (e.g., "1w", "30d", "6mo").
func WithSince(since string) Option {
	return func(o *Options) {
		o.Since = since
	}
}

// WithStateFile overrides the delivered-issue store path.
func WithStateFile(path string) Option {
	return func(o *Options) {
		o.StateFile = path
	}
}

// WithVerbosity sets the verbosity level.
func WithVerbosity(v int) Option {
	return func(o *Options) {
		o.Verbosity = v
	}
}

// WithDryRun enables analysis without delivery.
func WithDryRun(dryRun bool) Option {
	return func(o *Options) {
		o.DryRun = dryRun
	}
}

// WithDigest forces the per-run summary card on.
func WithDigest(digest bool) Option {
	return func(o *Options) {
		o.Digest = digest
	}
}
