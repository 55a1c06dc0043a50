package shader

import (
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies whether a shader is a render shader or a compute shader.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

// Stage returns the wgpu shader stage flag for the shader type.
func (t ShaderType) Stage() wgpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return wgpu.ShaderStageVertex
	case ShaderTypeFragment:
		return wgpu.ShaderStageFragment
	case ShaderTypeCompute:
		return wgpu.ShaderStageCompute
	default:
		return wgpu.ShaderStageNone
	}
}

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	shaderType    ShaderType
	entryPoint    string
	workGroupSize [3]uint32
	includes      []string
}

// Shader is a user-authored WGSL body for one stage. It declares no bind groups itself: the pipeline
// patcher prepends preludes and @group/@binding declarations generated from the object's bind groups.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the WGSL body with annotation lines removed.
	//
	// Returns:
	//   - string: the WGSL body
	Source() string

	// ShaderType returns the type of the shader (vertex, fragment, or compute).
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex, ShaderTypeFragment, or ShaderTypeCompute
	ShaderType() ShaderType

	// EntryPoint returns the entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions for compute shaders.
	// Returns [0, 0, 0] for non-compute shaders and [1, 1, 1] as the default when
	// @workgroup_size is not specified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Includes returns the shared chunks requested with //@oxy:include annotations.
	//
	// Returns:
	//   - []string: chunk names in source order
	Includes() []string
}

var _ Shader = &shader{}

// NewShader creates a Shader from WGSL source. It panics if the source carries a malformed annotation
// or has no entry point for shaderType.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage the body implements
//   - source: the WGSL body
//
// Returns:
//   - Shader: the parsed shader
func NewShader(key string, shaderType ShaderType, source string) Shader {
	s, err := ParseShader(key, shaderType, source)
	if err != nil {
		panic(err)
	}
	return s
}

// NewShaderFromPath reads WGSL source from path and creates a Shader. It panics like NewShader,
// and also when the file cannot be read.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage the body implements
//   - sourcePath: the file path to read WGSL source from
//
// Returns:
//   - Shader: the parsed shader
func NewShaderFromPath(key string, shaderType ShaderType, sourcePath string) Shader {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		panic(fmt.Sprintf("shader: failed to read source file %q: %v", sourcePath, err))
	}
	return NewShader(key, shaderType, string(data))
}

// ParseShader is the non-panicking form of NewShader.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage the body implements
//   - source: the WGSL body
//
// Returns:
//   - Shader: the parsed shader
//   - error: error if an annotation is malformed or the entry point is missing
func ParseShader(key string, shaderType ShaderType, source string) (Shader, error) {
	pp := NewPreProcessor()
	body, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", key, err)
	}

	s := &shader{
		key:        key,
		source:     body,
		shaderType: shaderType,
		entryPoint: EntryPoint(body, shaderType),
		includes:   append([]string(nil), pp.Includes()...),
	}
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader: %s has no entry point for its stage", key)
	}
	if shaderType == ShaderTypeCompute {
		s.workGroupSize = WorkgroupSize(body)
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Includes() []string {
	return s.includes
}
