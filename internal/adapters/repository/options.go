package repository

// Option applies a configuration option to the SQLStore.
type Option func(*storeOptions)

type storeOptions struct {
	maxOpenConns int
}

// WithMaxOpenConns caps open database connections. Zero leaves the driver
// default.
func WithMaxOpenConns(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}
