// internal/rules/cost.go
package rules

import "github.com/solatis/cratedigger/internal/types"

/*
 * Cost model for predicate evaluation.
 *
 * Each leaf predicate gets an estimated per-record cost:
 *
 *   cost = operator_cost * field_multiplier
 *
 * Two consumers:
 *   - Compile orders the operands of every AND/OR so the cheaper side runs
 *     first. Predicates are pure, so reordering never changes a result; it
 *     only increases short-circuit benefit.
 *   - The report orchestrator dispatches expensive rules to workers first.
 *     Output order is restored afterwards, so cost never affects a report.
 */

const (
	// Operator base costs
	CostEq      = 5
	CostNeq     = 5
	CostOrder   = 7
	CostIn      = 8
	CostBetween = 9
	CostRegex   = 40

	// Field multipliers
	MultiplierScalar   = 1
	MultiplierMetadata = 2 // map lookup
	MultiplierDate     = 3 // instant comparison, string parse for metadata
	MultiplierList     = 4 // ANY over elements

	// BaseCost is charged once per compiled rule for the per-record call.
	BaseCost = 1
)

// CalculateConditionCost computes the cost of one leaf predicate over field.
func CalculateConditionCost(field fieldPath, opCost int) int {
	return opCost * fieldMultiplier(field)
}

// comparisonCost returns the base cost for a comparison operator.
func comparisonCost(op types.CompareOp) int {
	switch op {
	case types.OpEq:
		return CostEq
	case types.OpNeq:
		return CostNeq
	default:
		return CostOrder
	}
}

func fieldMultiplier(field fieldPath) int {
	switch {
	case field.kind.multiValued():
		return MultiplierList
	case field.kind == fieldMetadata:
		return MultiplierMetadata
	case field.kind == fieldReleaseDate:
		return MultiplierDate
	default:
		return MultiplierScalar
	}
}
