// Package preview backs the formula editor: live evaluation against a
// sample context and static checking against the variables actually
// available at a node. Both reuse the execution interpreter, so a formula
// that previews clean behaves identically at runtime.
package preview

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pedbender123/repforce-web-sub002/internal/formula"
	"github.com/pedbender123/repforce-web-sub002/internal/variables"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// Service evaluates and checks formulas for the editor. Safe for
// concurrent use.
type Service struct {
	interp *formula.Interpreter
}

// NewService creates a preview service around a shared interpreter. Pass
// the engine's interpreter so both sides share one parse cache.
func NewService(interp *formula.Interpreter) *Service {
	if interp == nil {
		interp = formula.New()
	}
	return &Service{interp: interp}
}

// Evaluate runs a formula against a caller-supplied sample context and
// returns the value. Evaluation errors come back as the error value, never
// as a panic; the editor renders them inline.
func (s *Service) Evaluate(src string, sampleContext map[string]any) (any, error) {
	return s.interp.Evaluate(src, sampleContext)
}

// Check statically validates a formula placed at atNode: parseability,
// every reference against the node's computed variables, every function
// against the builtin registry. All problems are reported together.
func (s *Service) Check(trail *schema.Trail, atNode, src string) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	refs, funcs, err := s.interp.References(src)
	if err != nil {
		result.AddError("formula", errCode(err, schema.ErrCodeParse), err.Error())
		return result
	}

	vars, err := variables.ComputedVariables(trail, atNode)
	if err != nil {
		result.AddError("node", errCode(err, schema.ErrCodeValidation), err.Error())
		return result
	}

	// Variable names are bracketed ("[CriarCliente].new_id"); the
	// interpreter reports references in dotted form.
	known := make(map[string]schema.ValueType, len(vars))
	for _, v := range vars {
		known[dotted(v.Name)] = v.Type
	}

	for _, ref := range refs {
		if _, ok := known[ref]; ok {
			continue
		}
		if !traversable(known, ref) {
			result.AddError("formula", schema.ErrCodeUnknownReference,
				fmt.Sprintf("reference [%s] is not available at this node", ref))
		}
	}

	for _, fn := range funcs {
		if !formula.KnownFunction(fn) {
			result.AddError("formula", schema.ErrCodeUnknownFunction,
				fmt.Sprintf("unknown function %s", fn))
		}
	}
	return result
}

// Variables lists the symbols available at a node, for the editor's
// variable picker.
func (s *Service) Variables(trail *schema.Trail, atNode string) ([]variables.Variable, error) {
	return variables.ComputedVariables(trail, atNode)
}

// errCode extracts the structured code from an error, with a fallback.
func errCode(err error, fallback string) string {
	var terr *schema.TrailError
	if errors.As(err, &terr) {
		return terr.Code
	}
	return fallback
}

// dotted strips the picker brackets from a variable name:
// "[CriarCliente].new_id" becomes "CriarCliente.new_id".
func dotted(name string) string {
	name = strings.ReplaceAll(name, "[", "")
	return strings.ReplaceAll(name, "]", "")
}

// traversable accepts dotted references that descend into an object-shaped
// symbol ([trigger.body].customer) without the full path being declared.
// Scalar symbols offer nothing to traverse, so [X].new_id.extra on a text
// output is an unknown reference here instead of a runtime type error.
func traversable(known map[string]schema.ValueType, ref string) bool {
	for name, vt := range known {
		if vt != schema.ValueObject && vt != schema.ValueAny {
			continue
		}
		if strings.HasPrefix(ref, name+".") {
			return true
		}
	}
	return false
}
