package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const particleSource = `struct Particle {
	position: vec3f,
	speed: f32,
}

@group(1) @binding(0) var<storage, read_write> particles: array<Particle>;
@group(0) @binding(1) var albedo: texture_2d<f32>;
@group(0) @binding(0) var<uniform> scale: vec4f;

// @compute @workgroup_size(1)
@compute @workgroup_size(8, 4)
fn step(@builtin(global_invocation_id) id: vec3u) {
	particles[id.x].position += vec3f(particles[id.x].speed);
}
`

func TestParseShaderStripsIncludes(t *testing.T) {
	s, err := ParseShader("lit", ShaderTypeVertex, "//@oxy:include projection\n//@oxy:include constants\n@vertex\nfn main_vs() -> @builtin(position) vec4f { return vec4f(PI); }\n")
	require.NoError(t, err)
	assert.Equal(t, "main_vs", s.EntryPoint())
	assert.Equal(t, []string{ChunkProjection, ChunkConstants}, s.Includes())
	assert.NotContains(t, s.Source(), "@oxy:")
	assert.Equal(t, []string{ChunkConstants, ChunkProjection}, OrderChunks(s.Includes()), "chunks are emitted in registration order")
}

func TestParseShaderErrors(t *testing.T) {
	_, err := ParseShader("bad", ShaderTypeVertex, "//@oxy:include nowhere\n@vertex fn vs() {}")
	assert.ErrorContains(t, err, "nowhere")

	_, err = ParseShader("bad", ShaderTypeFragment, "@vertex fn vs() {}")
	assert.ErrorContains(t, err, "no entry point")

	assert.Panics(t, func() { NewShader("bad", ShaderTypeCompute, "fn nothing() {}") })
}

func TestRegisterChunk(t *testing.T) {
	require.NoError(t, RegisterChunk("test.tint", "const TINT: f32 = 0.5;\n"))
	require.NoError(t, RegisterChunk("test.tint", "const TINT: f32 = 0.5;\n"))
	assert.Error(t, RegisterChunk("test.tint", "const TINT: f32 = 1.0;\n"))

	src, ok := ChunkSource("test.tint")
	require.True(t, ok)
	assert.Equal(t, "const TINT: f32 = 0.5;\n", src)
}

func TestComputeWorkgroupSize(t *testing.T) {
	s := NewShader("particles", ShaderTypeCompute, particleSource)
	assert.Equal(t, "step", s.EntryPoint())
	assert.Equal(t, [3]uint32{8, 4, 1}, s.WorkgroupSize(), "commented annotations are ignored and omitted sizes are 1")
	assert.Equal(t, [3]uint32{1, 1, 1}, WorkgroupSize("fn f() {}"))
}

func TestParseResourceSlotsSortsAndSizes(t *testing.T) {
	slots := ParseResourceSlots(particleSource, wgpu.ShaderStageCompute)
	require.Len(t, slots, 3)

	got := make([]string, len(slots))
	for i, s := range slots {
		got[i] = s.Name
	}
	if diff := cmp.Diff([]string{"scale", "albedo", "particles"}, got); diff != "" {
		t.Errorf("slot order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, wgpu.BufferBindingTypeStorage, slots[2].Entry.Buffer.Type)
	assert.Equal(t, uint64(16), slots[2].Entry.Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, slots[0].Entry.Buffer.Type)
}

func TestStructLayoutFollowsAlignment(t *testing.T) {
	offsets, layout, ok := StructLayout([]StructField{
		{Name: "position", Type: "vec3f"},
		{Name: "speed", Type: "f32"},
		{Name: "matrix", Type: "mat4x4f"},
		{Name: "uv", Type: "vec2f"},
	}, nil)
	require.True(t, ok)
	if diff := cmp.Diff([]uint64{0, 12, 16, 80}, offsets); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Layout{96, 16}, layout)

	_, _, ok = StructLayout([]StructField{{Name: "x", Type: "Unknown"}}, nil)
	assert.False(t, ok)
}

func TestTypeLayoutArrays(t *testing.T) {
	l, ok := TypeLayout("array<vec3f, 4>", nil)
	require.True(t, ok)
	assert.Equal(t, Layout{64, 16}, l)

	l, ok = TypeLayout("array<Particle>", map[string]Layout{"Particle": {16, 16}})
	require.True(t, ok)
	assert.Equal(t, Layout{16, 16}, l)
	assert.Equal(t, uint64(32), RoundUpAlign(16, 17))
}

func TestValidateRejectsBrokenSource(t *testing.T) {
	assert.Error(t, Validate("fn broken( {"))
	assert.NoError(t, Validate("@compute @workgroup_size(1)\nfn main() {}\n"))
}
