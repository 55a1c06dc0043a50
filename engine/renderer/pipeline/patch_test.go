package pipeline

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tintSource = `
@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4f {
	return vec4f(f32(i), 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
	return tint.color;
}
`

func tintBinding(name string) bind_group.Binding {
	return bind_group.NewBinding(name, bind_group.KindUniform,
		bind_group.WithStructName("Tint"),
		bind_group.WithField("color", "vec4f", nil),
	)
}

func TestPatchOrdersPreludesBeforeDeclarations(t *testing.T) {
	vs := shader.NewShader("vs", shader.ShaderTypeVertex, "//@oxy:include projection\n"+tintSource)
	g1 := bind_group.NewBindGroup("material", bind_group.WithIndex(1), bind_group.WithBindings(
		bind_group.NewBinding("params", bind_group.KindUniform,
			bind_group.WithField("strength", "f32", nil),
			bind_group.WithChunks(shader.ChunkConstants),
		),
	))
	g0 := bind_group.NewBindGroup("object", bind_group.WithIndex(0), bind_group.WithBindings(tintBinding("tint")))

	src := Patch(Descriptor{Label: "ordered", Vertex: vs, Groups: []bind_group.BindGroup{g1, g0}})

	constants := strings.Index(src.Vertex, "const PI")
	projection := strings.Index(src.Vertex, "fn projectPosition")
	group0 := strings.Index(src.Vertex, "@group(0) @binding(0) var<uniform> tint: Tint;")
	group1 := strings.Index(src.Vertex, "@group(1) @binding(0) var<uniform> params: Params;")
	body := strings.Index(src.Vertex, "fn vs_main")

	require.True(t, constants >= 0 && projection >= 0 && group0 >= 0 && group1 >= 0 && body >= 0, src.Vertex)
	assert.Less(t, constants, projection, "preludes follow registration order")
	assert.Less(t, projection, group0)
	assert.Less(t, group0, group1, "groups are declared by ascending index")
	assert.Less(t, group1, body)
	assert.Less(t, strings.Index(src.Vertex, "struct Tint {"), group0, "struct precedes its declaration")
}

func TestPatchEmitsPreludesOnce(t *testing.T) {
	vs := shader.NewShader("vs", shader.ShaderTypeVertex, "//@oxy:include constants\n"+tintSource)
	g := bind_group.NewBindGroup("object", bind_group.WithIndex(0), bind_group.WithBindings(
		bind_group.NewBinding("tint", bind_group.KindUniform,
			bind_group.WithStructName("Tint"),
			bind_group.WithField("color", "vec4f", nil),
			bind_group.WithChunks(shader.ChunkConstants, shader.ChunkConstants),
		),
	))

	src := Patch(Descriptor{Vertex: vs, Groups: []bind_group.BindGroup{g}})
	assert.Equal(t, 1, strings.Count(src.Vertex, "const PI"))
}

func TestPatchEmitsIdenticalStructsOnce(t *testing.T) {
	vs := shader.NewShader("vs", shader.ShaderTypeVertex, tintSource)
	g := bind_group.NewBindGroup("object", bind_group.WithIndex(0), bind_group.WithBindings(
		tintBinding("tint"),
		tintBinding("outline"),
	))

	src := Patch(Descriptor{Vertex: vs, Groups: []bind_group.BindGroup{g}})
	assert.Equal(t, 1, strings.Count(src.Vertex, "struct Tint {"))
	assert.Contains(t, src.Vertex, "@group(0) @binding(1) var<uniform> outline: Tint;")
}

func TestPatchSharesModuleForIdenticalBodies(t *testing.T) {
	vs := shader.NewShader("vs", shader.ShaderTypeVertex, tintSource)
	fs := shader.NewShader("fs", shader.ShaderTypeFragment, tintSource)
	vertices := VertexLayout{Struct: "struct VertexInput {\n\t@location(0) position: vec3f,\n}"}

	src := Patch(Descriptor{Vertex: vs, Fragment: fs, Vertices: vertices})
	assert.True(t, src.Shared)
	assert.Equal(t, src.Vertex, src.Fragment)
	assert.Contains(t, src.Vertex, "struct VertexInput")
}

func TestPatchKeepsAttributesOutOfFragment(t *testing.T) {
	vs := shader.NewShader("vs", shader.ShaderTypeVertex,
		"@vertex\nfn vs_main(in: VertexInput) -> @builtin(position) vec4f {\n\treturn vec4f(in.position, 1.0);\n}\n")
	fs := shader.NewShader("fs", shader.ShaderTypeFragment,
		"@fragment\nfn fs_main() -> @location(0) vec4f {\n\treturn vec4f(1.0);\n}\n")
	vertices := VertexLayout{Struct: "struct VertexInput {\n\t@location(0) position: vec3f,\n}"}

	src := Patch(Descriptor{Vertex: vs, Fragment: fs, Vertices: vertices})
	assert.False(t, src.Shared)
	assert.Contains(t, src.Vertex, "struct VertexInput")
	assert.NotContains(t, src.Fragment, "struct VertexInput")
	assert.NotContains(t, src.Fragment, "vs_main")
}

func TestPatchComputeHasNoAttributes(t *testing.T) {
	cs := shader.NewShader("cs", shader.ShaderTypeCompute,
		"@compute @workgroup_size(8, 8)\nfn main(@builtin(global_invocation_id) id: vec3u) {\n}\n")
	g := bind_group.NewBindGroup("particles", bind_group.WithIndex(0), bind_group.WithBindings(
		bind_group.NewBinding("particles", bind_group.KindStorage,
			bind_group.WithField("position", "vec4f", nil),
			bind_group.WithElementCount(64),
			bind_group.WithReadWrite(),
		),
	))

	src := Patch(Descriptor{Compute: cs, Groups: []bind_group.BindGroup{g}})
	assert.Empty(t, src.Vertex)
	assert.Contains(t, src.Compute, "@group(0) @binding(0) var<storage, read_write> particles: array<Particles>;")
}

func TestSignatureSeparatesOptions(t *testing.T) {
	vs := shader.NewShader("vs", shader.ShaderTypeVertex, tintSource)
	a := Descriptor{Vertex: vs, Options: NewRenderOptions()}
	b := Descriptor{Vertex: vs, Options: NewRenderOptions(WithCullMode(wgpu.CullModeBack))}

	assert.Equal(t, signatureOf(a, Patch(a)), signatureOf(a, Patch(a)))
	assert.NotEqual(t, signatureOf(a, Patch(a)), signatureOf(b, Patch(b)))
}
