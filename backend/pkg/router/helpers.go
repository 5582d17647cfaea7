package router

import (
	"errors"
	"fmt"
	"slices"

	"arksync/backend/pkg/pathspec"
)

// validateRouteSpec validates a RouteSpec.
func validateRouteSpec(spec RouteSpec) error {
	if spec.OperationID == "" {
		return errors.New("field OperationID required")
	}

	if spec.Summary == "" {
		return errors.New("field Summary required")
	}

	if spec.Description == "" {
		return errors.New("field Description required")
	}

	if spec.Group == "" {
		return errors.New("field Group required")
	}

	if spec.Handler == nil {
		return errors.New("field Handler required")
	}

	return nil
}

// validateParameters checks that path parameters and documented parameters agree.
func validateParameters(spec RouteSpec) error {
	names, err := pathspec.Params(spec.fullPath)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", spec.fullPath, err)
	}

	paramsInPath := map[string]struct{}{}

	for _, name := range names {
		if !pathspec.ValidName(name) {
			return fmt.Errorf("invalid parameter name %s in path %s", name, spec.fullPath)
		}

		paramsInPath[name] = struct{}{}
	}

	documentedPathParams := map[string]struct{}{}
	validInValues := []ParameterIn{ParameterInPath, ParameterInQuery, ParameterInHeader}

	for name, paramSpec := range spec.Parameters {
		if name == "" {
			return fmt.Errorf("parameter name required for %s %s", spec.method, spec.fullPath)
		}

		if paramSpec.Description == "" {
			return fmt.Errorf("parameter Description required for %s %s", spec.method, spec.fullPath)
		}

		if !slices.Contains(validInValues, paramSpec.In) {
			return fmt.Errorf("parameter In must be one of %v for %s %s", validInValues, spec.method, spec.fullPath)
		}

		if paramSpec.In != ParameterInPath {
			continue
		}

		if _, exists := paramsInPath[name]; !exists {
			return fmt.Errorf("documented path parameter %s not found in path", name)
		}

		if !paramSpec.Required {
			return fmt.Errorf("path parameter %s must be required", name)
		}

		documentedPathParams[name] = struct{}{}
	}

	for name := range paramsInPath {
		if _, exists := documentedPathParams[name]; !exists {
			return fmt.Errorf("path parameter %s not documented", name)
		}
	}

	return nil
}
