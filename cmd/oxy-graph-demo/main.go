package main

import (
	"flag"
	"log/slog"
	"math"
	"os"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/game_object"
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/loader"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

const cubeSource = `struct VertexOutput {
	@builtin(position) position: vec4f,
	@location(0) normal: vec3f,
}

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
	var out: VertexOutput;
	out.position = camera.viewProjection * model.matrix * vec4f(in.position, 1.0);
	out.normal = (model.matrix * vec4f(in.normal, 0.0)).xyz;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
	let light = max(dot(normalize(in.normal), normalize(vec3f(0.4, 1.0, 0.3))), 0.15);
	return vec4f(vec3f(0.9, 0.5, 0.2) * light, 1.0);
}
`

const glassSource = `struct VertexOutput {
	@builtin(position) position: vec4f,
	@location(0) normal: vec3f,
}

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
	var out: VertexOutput;
	out.position = camera.viewProjection * model.matrix * vec4f(in.position, 1.0);
	out.normal = (model.matrix * vec4f(in.normal, 0.0)).xyz;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
	let rim = 1.0 - abs(dot(normalize(in.normal), vec3f(0.0, 0.0, 1.0)));
	return vec4f(0.3, 0.7, 1.0, 0.25 + 0.5 * rim);
}
`

const floorSource = `struct VertexOutput {
	@builtin(position) position: vec4f,
	@location(0) uv: vec2f,
}

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
	var out: VertexOutput;
	out.position = camera.viewProjection * model.matrix * vec4f(in.position, 1.0);
	out.uv = in.uv * 8.0;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
	return textureSample(albedo, albedoSampler, in.uv);
}
`

const trailSource = `@fragment
fn fs_main(in: ScreenOutput) -> @location(0) vec4f {
	return textureSample(source, sourceSampler, in.uv) * 0.9;
}
`

const vignetteSource = `@fragment
fn fs_main(in: ScreenOutput) -> @location(0) vec4f {
	let color = textureSample(source, sourceSampler, in.uv);
	let d = distance(in.uv, vec2f(0.5, 0.5));
	let pulse = 0.5 + 0.5 * sin(pulses[0].phase);
	return vec4f(color.rgb * (1.0 - d * (0.6 + 0.3 * pulse)), color.a);
}
`

const gammaSource = `@fragment
fn fs_main(in: ScreenOutput) -> @location(0) vec4f {
	let color = textureSample(source, sourceSampler, in.uv);
	return vec4f(pow(color.rgb, vec3f(1.0 / 1.1)), color.a);
}
`

const pulseSource = `@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3u) {
	if (id.x < arrayLength(&pulses)) {
		pulses[id.x].phase = pulses[id.x].phase + 0.02 * f32(id.x + 1u);
	}
}
`

func main() {
	texturePath := flag.String("texture", "", "image file for the floor texture (a checkerboard is generated when empty)")
	fallback := flag.Bool("fallback", false, "force the software adapter")
	vsync := flag.Bool("vsync", true, "present with vsync")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := common.Logger()

	win, err := window.NewWindow(
		window.WithTitle("oxy-graph demo"),
		window.WithSize(1280, 720),
		window.WithDragButton(window.DragMiddle),
	)
	if err != nil {
		log.Error("failed to open window", "error", err)
		os.Exit(1)
	}

	orbit := camera.NewOrbitController(
		camera.WithRadius(12),
		camera.WithElevation(0.4),
		camera.WithAzimuth(0.6),
		camera.WithRadiusBounds(2, 60),
		camera.WithOrbitSpeed(0.005),
		camera.WithZoomSpeed(1),
	)
	cam := camera.NewCamera(
		camera.WithFov(float32(45*math.Pi/180)),
		camera.WithNear(0.1),
		camera.WithFar(500),
		camera.WithController(orbit),
	)

	mode := device.PresentModeUncapped
	if *vsync {
		mode = device.PresentModeVSync
	}
	r, err := renderer.NewWindowRenderer(win, *fallback, mode,
		renderer.WithCamera(cam),
		renderer.WithClearColor(wgpu.Color{R: 0.05, G: 0.05, B: 0.08, A: 1}),
		renderer.WithPipelineOptions(
			pipeline.WithAsyncCompile(true),
			pipeline.WithShaderValidation(true),
		),
	)
	if err != nil {
		log.Error("failed to create renderer", "error", err)
		os.Exit(1)
	}

	eng := engine.NewEngine(
		engine.WithWindow(win),
		engine.WithTickRate(60),
		engine.WithProfiling(true, 0),
	)
	st := scene.NewStack("demo", r)

	ld, err := loader.NewLoader(loader.WithPost(eng.Enqueue))
	if err != nil {
		log.Error("failed to create loader", "error", err)
		os.Exit(1)
	}

	floor := newFloor(r, ld, *texturePath)
	st.Add(floor)

	cubeShader := shader.NewShader("cube", shader.ShaderTypeVertex, cubeSource)
	var cubes []game_object.Mesh
	for i := range 5 {
		x := float32(i-2) * 2.5
		cube := game_object.NewMesh("cube", geometry.NewBox("cube.box", 1, 1, 1), cubeShader,
			game_object.WithPosition(mgl32.Vec3{x, 0.5, 0}),
		)
		cubes = append(cubes, cube)
		st.Add(cube)
	}

	glassShader := shader.NewShader("glass", shader.ShaderTypeVertex, glassSource)
	for i := range 3 {
		st.Add(game_object.NewMesh("glass", geometry.NewBox("glass.box", 1.5, 1.5, 1.5), glassShader,
			game_object.WithTransparent(true),
			game_object.WithPosition(mgl32.Vec3{float32(i-1) * 3, 1, 3}),
		))
	}

	pulses := bind_group.NewBindGroup("pulses", bind_group.WithBindings(
		bind_group.NewBinding("pulses", bind_group.KindStorage,
			bind_group.WithVisibility(wgpu.ShaderStageCompute|wgpu.ShaderStageFragment),
			bind_group.WithStructName("Pulse"),
			bind_group.WithField("phase", "f32", nil),
			bind_group.WithElementCount(64),
			bind_group.WithReadWrite(),
		),
	))
	pulse := game_object.NewComputePass("pulse",
		shader.NewShader("pulse", shader.ShaderTypeCompute, pulseSource),
		game_object.WithBindGroups(pulses),
	)
	pulse.SetInvocations(64, 1, 1)
	st.Add(pulse)

	trail := game_object.NewPingPongPlane("trail", shader.NewShader("trail", shader.ShaderTypeFragment, trailSource))
	st.Add(trail)

	st.Add(game_object.NewCompositePass("vignette",
		shader.NewShader("vignette", shader.ShaderTypeFragment, vignetteSource),
		game_object.WithBindGroups(pulses),
	))
	st.Add(game_object.NewCompositePass("gamma", shader.NewShader("gamma", shader.ShaderTypeFragment, gammaSource)))

	eng.AddStack(0, st)

	win.SetDragCallback(func(dx, dy float32) {
		orbit.Orbit(-dx, dy)
	})
	win.SetScrollCallback(func(delta float32) {
		orbit.Zoom(delta)
	})
	win.SetKeyCallback(func(key uint32, down bool) {
		if !down {
			return
		}
		switch glfw.Key(key) {
		case glfw.KeyT:
			eng.Enqueue(func() { trail.SetVisible(!trail.Visible()) })
		case glfw.KeyR:
			eng.Enqueue(func() {
				if len(cubes) == 0 {
					return
				}
				last := cubes[len(cubes)-1]
				cubes = cubes[:len(cubes)-1]
				st.Remove(last)
			})
		}
	})

	var angle float32
	eng.SetTickCallback(func(dt float32) {
		angle += dt
		rot := mgl32.QuatRotate(angle, mgl32.Vec3{0, 1, 0})
		eng.Enqueue(func() {
			for _, c := range cubes {
				c.SetRotation(rot)
			}
		})
	})
	eng.SetRenderCallback(func(_ float32, reports []scene.FrameReport) {
		for _, rep := range reports {
			if rep.Status == scene.FrameRendered && rep.Skipped > 0 {
				log.Debug("objects skipped", "frame", rep.Frame, "skipped", rep.Skipped)
			}
		}
	})

	eng.Run()

	if err := ld.Wait(); err != nil {
		log.Error("texture loads failed", "error", err)
	}
	if err := win.Close(); err != nil {
		log.Error("failed to close window", "error", err)
	}
}

// newFloor builds a textured plane. The texture comes from path through the loader, or from a
// generated checkerboard.
func newFloor(r renderer.Renderer, ld loader.Loader, path string) game_object.Mesh {
	reg := r.Registry()
	albedo := reg.NewTexture("floor.albedo")
	if path != "" {
		ld.Load(albedo, path)
	} else {
		albedo.SetSource(checkerboard(64, 8))
	}
	sampler := reg.Sampler("floor.sampler", common.SamplerStagingData{
		AddressModeU: wgpu.AddressModeRepeat,
		AddressModeV: wgpu.AddressModeRepeat,
		AddressModeW: wgpu.AddressModeRepeat,
	})

	material := bind_group.NewBindGroup("floor.material", bind_group.WithBindings(
		bind_group.NewBinding("albedo", bind_group.KindTexture,
			bind_group.WithVisibility(wgpu.ShaderStageFragment),
			bind_group.WithResource(albedo),
		),
		bind_group.NewBinding("albedoSampler", bind_group.KindSampler,
			bind_group.WithVisibility(wgpu.ShaderStageFragment),
			bind_group.WithResource(sampler),
		),
	))
	return game_object.NewMesh("floor", geometry.NewPlane("floor.plane", 20),
		shader.NewShader("floor", shader.ShaderTypeVertex, floorSource),
		game_object.WithBindGroups(material),
	)
}

func checkerboard(size, cells int) common.TextureStagingData {
	pix := make([]byte, size*size*4)
	cell := size / cells
	for y := range size {
		for x := range size {
			v := byte(60)
			if (x/cell+y/cell)%2 == 0 {
				v = 200
			}
			i := (y*size + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
		}
	}
	return common.TextureStagingData{Pixels: pix, Width: uint32(size), Height: uint32(size)}
}
