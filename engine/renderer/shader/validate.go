package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Validate runs the pure-Go naga front end over WGSL source: parse, lower to IR, validate.
// It catches syntax and type errors before the source reaches the device compiler.
//
// Parameters:
//   - source: complete WGSL source
//
// Returns:
//   - error: the first diagnostic, or nil if the source is valid
func Validate(source string) error {
	ast, err := naga.Parse(source)
	if err != nil {
		return fmt.Errorf("wgsl parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return fmt.Errorf("wgsl lowering: %w", err)
	}
	validationErrors, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("wgsl validation: %w", err)
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("wgsl validation: %w", &validationErrors[0])
	}
	return nil
}
