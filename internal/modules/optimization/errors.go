package optimization

import (
	"fmt"
	"math"
)

// InsufficientDataError is returned when a return series has too few observations.
type InsufficientDataError struct {
	Observations int
	Required     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d observations, got %d", e.Required, e.Observations)
}

// ConfigurationError reports an invalid parameter or an inconsistent input.
// Field names the offending parameter; Asset is set when a single asset is at fault.
type ConfigurationError struct {
	Field  string
	Asset  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Asset != "" {
		return fmt.Sprintf("invalid configuration: %s[%s]: %s", e.Field, e.Asset, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// SingularMatrixError is returned when a required factorization or inversion fails.
type SingularMatrixError struct {
	Matrix string
	Err    error
}

func (e *SingularMatrixError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("singular matrix %s: %v", e.Matrix, e.Err)
	}
	return fmt.Sprintf("singular matrix %s", e.Matrix)
}

func (e *SingularMatrixError) Unwrap() error {
	return e.Err
}

// InfeasibleError is returned when an optimization problem has no admissible solution.
// Target is NaN when the operation has no scalar target.
type InfeasibleError struct {
	Operation string
	Target    float64
	Reason    string
}

func (e *InfeasibleError) Error() string {
	if math.IsNaN(e.Target) {
		return fmt.Sprintf("%s infeasible: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s infeasible for target %.6g: %s", e.Operation, e.Target, e.Reason)
}

// ConvergenceError is returned when an iterative solver stops at its
// iteration limit. The problem may still be feasible.
type ConvergenceError struct {
	Operation  string
	Iterations int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s did not converge after %d iterations", e.Operation, e.Iterations)
}

// DegenerateDistributionError is returned when portfolio returns have zero dispersion.
type DegenerateDistributionError struct {
	StdDev float64
}

func (e *DegenerateDistributionError) Error() string {
	return fmt.Sprintf("degenerate return distribution: standard deviation %g", e.StdDev)
}

func configErr(field, asset, reason string) error {
	return &ConfigurationError{Field: field, Asset: asset, Reason: reason}
}

func infeasible(operation string, target float64, reason string) error {
	return &InfeasibleError{Operation: operation, Target: target, Reason: reason}
}
