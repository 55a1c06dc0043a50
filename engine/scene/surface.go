package scene

// SurfaceSizer is the service reporting the surface size. window.Window implements it.
type SurfaceSizer interface {
	Width() int
	Height() int
	SetResizeCallback(callback func(width, height int))
}

// FollowSurface resizes st to sizer now and on every resize notification. post runs the resize on
// the frame thread; pass nil when notifications already arrive there.
//
// Parameters:
//   - st: the stack to resize
//   - sizer: the surface
//   - post: schedules a function on the frame thread, or nil
func FollowSurface(st Stack, sizer SurfaceSizer, post func(func())) {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	st.Resize(sizer.Width(), sizer.Height())
	sizer.SetResizeCallback(func(width, height int) {
		post(func() { st.Resize(width, height) })
	})
}
