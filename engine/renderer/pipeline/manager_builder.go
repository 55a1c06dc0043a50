package pipeline

import "time"

// ManagerBuilderOption is a functional option used to configure a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithShaderValidation validates patched sources with naga before handing them to the device, so syntax
// errors surface with a front-end diagnostic instead of a device error.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - ManagerBuilderOption: a function that sets validation
func WithShaderValidation(enabled bool) ManagerBuilderOption {
	return func(m *manager) {
		m.validate = enabled
	}
}

// WithCompileTimeout sets how long an async compile may stay in flight before Poll marks it failed.
//
// Parameters:
//   - timeout: the timeout, ignored if not positive
//
// Returns:
//   - ManagerBuilderOption: a function that sets the timeout
func WithCompileTimeout(timeout time.Duration) ManagerBuilderOption {
	return func(m *manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithAsyncCompile sets whether objects should compile their pipelines asynchronously.
//
// Parameters:
//   - async: the default compile mode
//
// Returns:
//   - ManagerBuilderOption: a function that sets the default mode
func WithAsyncCompile(async bool) ManagerBuilderOption {
	return func(m *manager) {
		m.async = async
	}
}

// WithCompileWorkers sets how many pipelines may compile concurrently.
//
// Parameters:
//   - workers: the concurrency limit, ignored if not positive
//
// Returns:
//   - ManagerBuilderOption: a function that sets the worker count
func WithCompileWorkers(workers int) ManagerBuilderOption {
	return func(m *manager) {
		if workers > 0 {
			m.workers = workers
		}
	}
}

// WithModuleCacheSize sets how many shader modules stay cached by source.
//
// Parameters:
//   - size: the cache capacity, ignored if not positive
//
// Returns:
//   - ManagerBuilderOption: a function that sets the capacity
func WithModuleCacheSize(size int) ManagerBuilderOption {
	return func(m *manager) {
		if size > 0 {
			m.moduleCacheSize = size
		}
	}
}
