package bind_group

// BindGroupBuilderOption is a functional option used to configure a BindGroup during construction.
type BindGroupBuilderOption func(*bindGroup)

// WithIndex sets the group index up front. Groups without an index get one assigned by their owner.
//
// Parameters:
//   - index: the group index
//
// Returns:
//   - BindGroupBuilderOption: a function that sets the index
func WithIndex(index int) BindGroupBuilderOption {
	return func(g *bindGroup) {
		g.index = index
	}
}

// WithBindings appends bindings in order.
//
// Parameters:
//   - bindings: the bindings to append
//
// Returns:
//   - BindGroupBuilderOption: a function that adds the bindings
func WithBindings(bindings ...Binding) BindGroupBuilderOption {
	return func(g *bindGroup) {
		for _, b := range bindings {
			g.AddBinding(b)
		}
	}
}
