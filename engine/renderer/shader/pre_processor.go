// pre_processor.go implements the Oxy WGSL shader pre-processor. Shader bodies may request shared
// preludes with single-line annotations:
//
//	//@oxy:include projection
//
// The pre-processor strips those lines and records the requested chunk names. The pipeline patcher
// later emits each requested chunk exactly once, ahead of the generated bind group declarations.
package shader

import (
	"fmt"
	"strings"
	"sync"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// includeDirective is the only annotation the pre-processor understands.
const includeDirective = "include"

// chunkRegistry holds the shared WGSL preludes in registration order.
var chunkRegistry = struct {
	mu     sync.RWMutex
	order  []string
	chunks map[string]string
}{chunks: make(map[string]string)}

func init() {
	mustRegisterChunk(ChunkConstants, "const PI: f32 = 3.141592653589793;\nconst TAU: f32 = 6.283185307179586;\n")
	mustRegisterChunk(ChunkProjection, "fn projectPosition(viewProjection: mat4x4f, model: mat4x4f, position: vec3f) -> vec4f {\n\treturn viewProjection * model * vec4f(position, 1.0);\n}\n")
	mustRegisterChunk(ChunkFullscreen, "fn fullscreenUV(position: vec2f) -> vec2f {\n\treturn position * vec2f(0.5, -0.5) + vec2f(0.5);\n}\n")
}

// Built-in chunk names.
const (
	ChunkConstants  = "constants"
	ChunkProjection = "projection"
	ChunkFullscreen = "fullscreen"
)

func mustRegisterChunk(name, source string) {
	if err := RegisterChunk(name, source); err != nil {
		panic(err)
	}
}

// RegisterChunk registers a shared WGSL prelude under name. Registering the same name twice
// with identical source is a no-op; a different source is an error.
//
// Parameters:
//   - name: the chunk name used by //@oxy:include and binding chunk requests
//   - source: the WGSL text emitted once per patched shader
//
// Returns:
//   - error: error if name is already registered with different source
func RegisterChunk(name, source string) error {
	chunkRegistry.mu.Lock()
	defer chunkRegistry.mu.Unlock()

	if existing, ok := chunkRegistry.chunks[name]; ok {
		if existing != source {
			return fmt.Errorf("shader: chunk %q already registered with different source", name)
		}
		return nil
	}
	chunkRegistry.chunks[name] = source
	chunkRegistry.order = append(chunkRegistry.order, name)
	return nil
}

// ChunkSource returns the source registered for name.
func ChunkSource(name string) (string, bool) {
	chunkRegistry.mu.RLock()
	defer chunkRegistry.mu.RUnlock()
	src, ok := chunkRegistry.chunks[name]
	return src, ok
}

// OrderChunks deduplicates names and returns the registered ones in registration order.
// Unknown names are dropped.
//
// Parameters:
//   - names: requested chunk names, possibly repeated
//
// Returns:
//   - []string: the distinct registered names in registration order
func OrderChunks(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	chunkRegistry.mu.RLock()
	defer chunkRegistry.mu.RUnlock()
	out := make([]string, 0, len(want))
	for _, n := range chunkRegistry.order {
		if _, ok := want[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	includes []string
}

// PreProcessor strips //@oxy:include annotations from a WGSL body and records the chunks they request.
type PreProcessor interface {
	// Process removes annotation lines from source.
	//
	// Parameters:
	//   - source: the raw WGSL shader body
	//
	// Returns:
	//   - string: the body without annotation lines
	//   - error: error if an annotation is malformed or names an unregistered chunk
	Process(source string) (string, error)

	// Includes returns the chunk names requested by the most recent Process call, in source order.
	//
	// Returns:
	//   - []string: requested chunk names
	Includes() []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor.
func NewPreProcessor() PreProcessor {
	return &preProcessor{}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.includes = p.includes[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, "//")
		if !ok {
			out = append(out, line)
			continue
		}
		rest, ok = strings.CutPrefix(strings.TrimSpace(rest), annotationPrefix)
		if !ok {
			out = append(out, line)
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) != 2 || fields[0] != includeDirective {
			return "", fmt.Errorf("line %d: malformed annotation %q", i+1, trimmed)
		}
		if _, known := ChunkSource(fields[1]); !known {
			return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, fields[1])
		}
		p.includes = append(p.includes, fields[1])
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Includes() []string {
	return p.includes
}
