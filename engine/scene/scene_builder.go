package scene

// StackBuilderOption is a functional option for configuring a Stack.
// Use the With* functions to create options.
type StackBuilderOption func(s *stack)

// WithActive sets whether the engine renders the stack.
//
// Parameters:
//   - active: whether the stack is active
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithActive(active bool) StackBuilderOption {
	return func(s *stack) {
		s.active = active
	}
}

// WithIDAllocator shares a creation index allocator between stacks, so objects moved between them
// keep a consistent order.
//
// Parameters:
//   - ids: the allocator
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithIDAllocator(ids *IDAllocator) StackBuilderOption {
	return func(s *stack) {
		s.ids = ids
	}
}

// WithCallbacks sets the per-frame callbacks.
//
// Parameters:
//   - cb: the callbacks
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithCallbacks(cb Callbacks) StackBuilderOption {
	return func(s *stack) {
		s.callbacks = cb
	}
}

// WithAutoPrune controls whether Remove releases pipeline entries no member references. Enabled by
// default.
//
// Parameters:
//   - enabled: false to keep unreferenced entries cached
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithAutoPrune(enabled bool) StackBuilderOption {
	return func(s *stack) {
		s.autoPrune = enabled
	}
}
