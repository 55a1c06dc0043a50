package renderer

import "github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"

// RenderTarget is an off-screen color target the size of the surface. Objects added to it are drawn
// into its texture before the surface frame, so surface objects can sample the result.
type RenderTarget interface {
	// Label returns the debug label.
	Label() string

	// Texture returns the color texture drawn into.
	Texture() resource.Texture
}

type renderTarget struct {
	label   string
	texture resource.Texture
}

var _ RenderTarget = &renderTarget{}

func (t *renderTarget) Label() string             { return t.label }
func (t *renderTarget) Texture() resource.Texture { return t.texture }
