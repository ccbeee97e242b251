package bundle

// options 为一次打包/解包会话的可选参数。
type options struct {
	registry    *Registry
	entityLimit int
	parallelism int
}

// Option 用于配置打包/解包会话。
type Option func(*options)

func defaultOptions() *options {
	return &options{
		registry: defaultRegistry,
	}
}

func newOptions(opts ...Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithRegistry 指定解包时使用的注册表，默认使用进程级注册表。
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithEntityLimit 限制单个会话中的实体数量，n <= 0 表示不限制。
func WithEntityLimit(n int) Option {
	return func(o *options) {
		o.entityLimit = n
	}
}

// WithParallelism 指定 PackAll/UnpackAll 的并发会话数，n <= 0 时使用 CPU 核心数。
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}
