// internal/rules/compile.go
package rules

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles a types.Rule into a CompiledRule: the expression is parsed (text
 * arm) or decoded (tree arm), validated against the record schema, and turned
 * into a tree of predicate closures ready for per-record evaluation.
 *
 * Compilation workflow:
 *   1. Parse text or take the pre-built tree (both arms end here as types.Node)
 *   2. Validate fields, operators, literal types, regex patterns, depth
 *   3. Pre-coerce literals once (numbers, date ranges, canonical ids)
 *   4. Flatten AND/OR chains and order their operands by ascending cost
 *
 * Why compile-time validation: every error a rule can produce is raised
 * before any record is evaluated, so evaluation itself is total.
 *
 * Canonicalization: for fields that carry identifiers (id, artists, albumId)
 * the literal side of ==, !=, IN and NOT IN is rewritten through the run's
 * CanonicalMap, matching the canonicalized record values.
 */

// RegexMatchTimeout bounds a single MATCHES search against one value.
// Backtracking patterns over long titles must not stall a batch.
const RegexMatchTimeout = 100 * time.Millisecond

// predicate is a compiled node. Pure: safe to call concurrently.
type predicate func(rec *types.Record) bool

// CompiledRule is a validated rule ready for evaluation.
type CompiledRule struct {
	RuleID   string
	Label    string
	Priority int
	Root     types.Node // nil for an empty expression (matches nothing)
	Cost     int
	match    predicate
	fault    *evalFault
}

// Err returns the first evaluation fault seen by Match, wrapping
// types.ErrMatchTimeout. Results produced after a fault are not reliable.
func (r *CompiledRule) Err() error {
	return r.fault.get()
}

// evalFault records the first fault raised by any predicate of one rule.
type evalFault struct {
	err atomic.Pointer[error]
}

func (f *evalFault) set(err error) {
	f.err.CompareAndSwap(nil, &err)
}

func (f *evalFault) get() error {
	if f == nil {
		return nil
	}
	if p := f.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Match reports whether rec satisfies the rule. rec should already be canonicalized.
func (r *CompiledRule) Match(rec *types.Record) bool {
	if r.match == nil {
		return false
	}
	return r.match(rec)
}

// Compile validates and pre-processes a rule for efficient evaluation.
func Compile(rule *types.Rule, canon types.CanonicalMap) (*CompiledRule, error) {
	root, err := ParseExpression(rule.Expression)
	if err != nil {
		return nil, err
	}

	compiled := &CompiledRule{
		RuleID:   rule.ID,
		Label:    rule.Label,
		Priority: rule.Priority,
		Root:     root,
		Cost:     BaseCost,
	}
	if root == nil {
		return compiled, nil
	}

	c := &compiler{canon: canon, fault: &evalFault{}}
	match, cost, err := c.compileNode(root, 0)
	if err != nil {
		return nil, err
	}
	compiled.match = match
	compiled.fault = c.fault
	compiled.Cost += cost
	return compiled, nil
}

// ParseExpression resolves either arm of the expression union to an AST.
// Empty text yields a nil node; an empty tree is an error.
func ParseExpression(expr types.Expression) (types.Node, error) {
	switch expr.Kind {
	case types.ExpressionText:
		return Parse(expr.Text)
	case types.ExpressionTree:
		n, err := expr.TreeNode()
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, types.Expressionf("tree expression has no root node")
		}
		return n, nil
	default:
		return nil, types.Expressionf("rule has no expression")
	}
}

type compiler struct {
	canon types.CanonicalMap
	fault *evalFault
}

// compileNode validates n and returns its predicate and estimated cost.
func (c *compiler) compileNode(n types.Node, depth int) (predicate, int, error) {
	if depth > types.MaxTreeDepth {
		return nil, 0, types.Expressionf("expression nesting exceeds maximum depth %d", types.MaxTreeDepth)
	}

	switch v := n.(type) {
	case *types.LogicalAnd:
		preds, cost, err := c.compileChain(flattenChain(v), depth)
		if err != nil {
			return nil, 0, err
		}
		return func(rec *types.Record) bool {
			for _, p := range preds {
				if !p(rec) {
					return false
				}
			}
			return true
		}, cost, nil

	case *types.LogicalOr:
		preds, cost, err := c.compileChain(flattenChain(v), depth)
		if err != nil {
			return nil, 0, err
		}
		return func(rec *types.Record) bool {
			for _, p := range preds {
				if p(rec) {
					return true
				}
			}
			return false
		}, cost, nil

	case *types.LogicalNot:
		if v.Inner == nil {
			return nil, 0, types.Expressionf("NOT requires an operand")
		}
		inner, cost, err := c.compileNode(v.Inner, depth+1)
		if err != nil {
			return nil, 0, err
		}
		return func(rec *types.Record) bool { return !inner(rec) }, cost, nil

	case *types.Comparison:
		return c.compileComparison(v)
	case *types.InList:
		return c.compileIn(v)
	case *types.Between:
		return c.compileBetween(v)
	case *types.RegexMatch:
		return c.compileRegex(v)

	case *types.FieldReference:
		return nil, 0, types.Expressionf("field %s is not a predicate; add an operator", v.String())
	case *types.Literal:
		return nil, 0, types.Expressionf("literal %s is not a predicate", v.Text())
	case nil:
		return nil, 0, types.Expressionf("missing operand")
	default:
		return nil, 0, types.Expressionf("unsupported node %T", n)
	}
}

// flattenChain collects the operands of a run of the same connective in
// source order. A left-associative chain of n clauses is one level of
// nesting, not n.
func flattenChain(n types.Node) []types.Node {
	var rights []types.Node
	cur := n
	for {
		left, right, ok := splitConnective(n, cur)
		if !ok {
			break
		}
		rights = append(rights, right)
		cur = left
	}

	out := make([]types.Node, 0, len(rights)+1)
	out = append(out, cur)
	for i := len(rights) - 1; i >= 0; i-- {
		out = append(out, rights[i])
	}
	return out
}

// splitConnective returns n's operands when n is the same connective as parent.
func splitConnective(parent, n types.Node) (left, right types.Node, ok bool) {
	switch v := n.(type) {
	case *types.LogicalAnd:
		if _, and := parent.(*types.LogicalAnd); and {
			return v.Left, v.Right, true
		}
	case *types.LogicalOr:
		if _, or := parent.(*types.LogicalOr); or {
			return v.Left, v.Right, true
		}
	}
	return nil, nil, false
}

// compileChain compiles the operands of one connective, cheapest first.
func (c *compiler) compileChain(operands []types.Node, depth int) ([]predicate, int, error) {
	type costed struct {
		match predicate
		cost  int
	}
	compiled := make([]costed, len(operands))
	total := 0
	for i, operand := range operands {
		if operand == nil {
			return nil, 0, types.Expressionf("AND/OR requires two operands")
		}
		match, cost, err := c.compileNode(operand, depth+1)
		if err != nil {
			return nil, 0, err
		}
		compiled[i] = costed{match, cost}
		total += cost
	}
	slices.SortStableFunc(compiled, func(a, b costed) int { return cmp.Compare(a.cost, b.cost) })

	preds := make([]predicate, len(compiled))
	for i, cp := range compiled {
		preds[i] = cp.match
	}
	return preds, total, nil
}

// operand is a compiled comparison side: exactly one of field or lit is set.
type operand struct {
	field *fieldPath
	lit   *types.Literal
}

func compileOperand(n types.Node) (operand, error) {
	switch v := n.(type) {
	case *types.FieldReference:
		path, err := compileField(v)
		if err != nil {
			return operand{}, err
		}
		return operand{field: &path}, nil
	case *types.Literal:
		if v == nil {
			return operand{}, types.Expressionf("missing literal")
		}
		return operand{lit: v}, nil
	default:
		return operand{}, types.Expressionf("comparison operands must be fields or literals, got %T", n)
	}
}

func (c *compiler) compileComparison(cmp *types.Comparison) (predicate, int, error) {
	if !cmp.Op.Valid() {
		return nil, 0, types.Expressionf("unknown comparison operator %q", string(cmp.Op))
	}
	left, err := compileOperand(cmp.Left)
	if err != nil {
		return nil, 0, err
	}
	right, err := compileOperand(cmp.Right)
	if err != nil {
		return nil, 0, err
	}

	op := cmp.Op
	if left.field == nil && right.field == nil {
		return nil, 0, types.Expressionf("comparison %s %s %s needs at least one field", left.lit.Text(), op, right.lit.Text())
	}
	if left.field == nil {
		left, right = right, left
		op = mirror(op)
	}

	ft, err := comparisonType(left, right)
	if err != nil {
		return nil, 0, err
	}

	cost := CalculateConditionCost(*left.field, comparisonCost(op))
	if right.field != nil {
		cost += CalculateConditionCost(*right.field, comparisonCost(op))
		return fieldFieldPredicate(op, ft, *left.field, *right.field), cost, nil
	}

	test, err := c.literalTest(ft, *left.field, op, right.lit)
	if err != nil {
		return nil, 0, err
	}
	return fieldPredicate(*left.field, op, test), cost, nil
}

// comparisonType picks the coercion for a comparison from its operands:
// numeric if any side is a numeric field or number literal, date if any side
// is releaseDate, text otherwise.
func comparisonType(operands ...operand) (FieldType, error) {
	var numeric, date bool
	for _, o := range operands {
		if o.field != nil {
			switch o.field.kind.fieldType() {
			case FieldTypeNumeric:
				numeric = true
			case FieldTypeDate:
				date = true
			}
		} else if o.lit.Kind == types.LiteralNumber {
			numeric = true
		}
	}
	switch {
	case numeric && date:
		return 0, types.Expressionf("releaseDate cannot be compared with a number")
	case numeric:
		return FieldTypeNumeric, nil
	case date:
		return FieldTypeDate, nil
	default:
		return FieldTypeText, nil
	}
}

// literalTest pre-coerces lit and returns the per-value test for ft.
func (c *compiler) literalTest(ft FieldType, field fieldPath, op types.CompareOp, lit *types.Literal) (valueTest, error) {
	switch ft {
	case FieldTypeNumeric:
		n, err := literalNumber(lit)
		if err != nil {
			return nil, err
		}
		return func(v any, op types.CompareOp) (bool, bool) {
			f, err := coerceNumeric(v)
			if err != nil {
				return false, false
			}
			return Compare(op, f, n), true
		}, nil

	case FieldTypeDate:
		r, err := literalDateRange(lit)
		if err != nil {
			return nil, err
		}
		return func(v any, op types.CompareOp) (bool, bool) {
			t, err := coerceDate(v)
			if err != nil {
				return false, false
			}
			return compareDateRange(op, t, r), true
		}, nil

	default:
		s := lit.Text()
		if field.kind.carriesIdentifier() && (op == types.OpEq || op == types.OpNeq) {
			s = c.canon.Resolve(s)
		}
		return func(v any, op types.CompareOp) (bool, bool) {
			t, err := coerceText(v)
			if err != nil {
				return false, false
			}
			return Compare(op, t, s), true
		}, nil
	}
}

func (c *compiler) compileIn(in *types.InList) (predicate, int, error) {
	field, err := compileField(in.Field)
	if err != nil {
		return nil, 0, err
	}
	if len(in.Values) == 0 {
		return nil, 0, types.Expressionf("IN list must not be empty")
	}

	var (
		texts   map[string]struct{}
		numbers []float64
		dates   []dateRange
	)
	switch field.kind.fieldType() {
	case FieldTypeNumeric:
		numbers = make([]float64, 0, len(in.Values))
	case FieldTypeDate:
		dates = make([]dateRange, 0, len(in.Values))
	default:
		texts = make(map[string]struct{}, len(in.Values))
	}

	for _, lit := range in.Values {
		if lit == nil {
			return nil, 0, types.Expressionf("IN list contains an empty value")
		}
		switch {
		case numbers != nil:
			n, err := literalNumber(lit)
			if err != nil {
				return nil, 0, err
			}
			numbers = append(numbers, n)
		case dates != nil:
			r, err := literalDateRange(lit)
			if err != nil {
				return nil, 0, err
			}
			dates = append(dates, r)
		default:
			s := lit.Text()
			if field.kind.carriesIdentifier() {
				s = c.canon.Resolve(s)
			}
			texts[s] = struct{}{}
		}
	}

	negated := in.Negated
	match := func(rec *types.Record) bool {
		res := field.resolve(rec)
		if !res.Found {
			return negated
		}
		hit := anyValue(res.Value, func(v any) bool {
			return inSet(v, texts, numbers, dates)
		})
		return hit != negated
	}
	return match, CalculateConditionCost(field, CostIn), nil
}

func (c *compiler) compileBetween(b *types.Between) (predicate, int, error) {
	field, err := compileField(b.Field)
	if err != nil {
		return nil, 0, err
	}
	if b.Low == nil || b.High == nil {
		return nil, 0, types.Expressionf("BETWEEN requires a lower and an upper bound")
	}
	cost := CalculateConditionCost(field, CostBetween)

	if field.kind.fieldType() == FieldTypeNumeric {
		lo, err := literalNumber(b.Low)
		if err != nil {
			return nil, 0, err
		}
		hi, err := literalNumber(b.High)
		if err != nil {
			return nil, 0, err
		}
		return rangePredicate(field, func(v any) bool {
			f, err := coerceNumeric(v)
			return err == nil && f >= lo && f <= hi
		}), cost, nil
	}

	low, err := literalDateRange(b.Low)
	if err != nil {
		return nil, 0, err
	}
	high, err := literalDateRange(b.High)
	if err != nil {
		return nil, 0, err
	}
	// Bare dates widen to start-of-day / end-of-day, so both ends are whole-day inclusive.
	lo, hi := low.lo, high.hi
	return rangePredicate(field, func(v any) bool {
		t, err := coerceDate(v)
		return err == nil && !t.Before(lo) && !t.After(hi)
	}), cost, nil
}

func (c *compiler) compileRegex(m *types.RegexMatch) (predicate, int, error) {
	field, err := compileField(m.Field)
	if err != nil {
		return nil, 0, err
	}
	opts, err := regexOptions(m.Flags)
	if err != nil {
		return nil, 0, err
	}
	re, err := regexp2.Compile(m.Pattern, opts)
	if err != nil {
		return nil, 0, types.Expressionf("invalid regex /%s/: %v", m.Pattern, err)
	}
	re.MatchTimeout = RegexMatchTimeout

	return rangePredicate(field, func(v any) bool {
		s, err := coerceText(v)
		if err != nil {
			return false
		}
		ok, err := re.MatchString(s)
		if err != nil {
			c.fault.set(fmt.Errorf("%w: /%s/: %v", types.ErrMatchTimeout, m.Pattern, err))
			return false
		}
		return ok
	}), CalculateConditionCost(field, CostRegex), nil
}

// regexOptions maps regex flag letters onto regexp2 options.
func regexOptions(flags string) (regexp2.RegexOptions, error) {
	var opts regexp2.RegexOptions
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g', 'u', 'y':
			// no effect on a single unanchored search
		default:
			return 0, types.Expressionf("unknown regex flag %q", string(f))
		}
	}
	return opts, nil
}
