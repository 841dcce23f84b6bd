// internal/report/assembler.go
package report

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/solatis/cratedigger/internal/rules"
	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Report assembly.
 *
 * Generate validates its inputs in a fixed order and fails on the first
 * violation:
 *   1. records        -> types.ErrInvalidRecords
 *   2. current time   -> types.ErrInvalidContext
 *   3. rules          -> types.ErrInvalidRuleDefinition
 *   4. canonical map  -> types.ErrInvalidCanonicalMapping
 *
 * Then every rule is compiled (any syntax/expression error aborts the whole
 * report, naming the rule), rules are ordered by priority desc and id asc,
 * candidates are built in parallel and the policy flags are applied. A regex
 * search that times out aborts the report as well.
 *
 * Parallelism: per-rule candidate construction runs on a conc iter.Mapper
 * bounded by the worker count. Jobs are handed out most expensive first
 * (compile-time cost estimate) and results are written back by position, so
 * the output never depends on scheduling.
 */

// Generator builds reports. The zero value is not usable; call NewGenerator.
type Generator struct {
	workers int
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithWorkers bounds concurrent rule evaluation. n <= 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		g.workers = n
	}
}

// WithLogger sets the logger used for per-rule debug timings.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers <= 0 {
		g.workers = runtime.GOMAXPROCS(0)
	}
	return g
}

var defaultGenerator = NewGenerator()

// GenerateReport builds a report with default settings.
func GenerateReport(records []types.Record, ectx *types.EvaluationContext) (*types.Report, error) {
	return defaultGenerator.Generate(records, ectx)
}

// Generate validates the inputs and assembles the report.
func (g *Generator) Generate(records []types.Record, ectx *types.EvaluationContext) (*types.Report, error) {
	return g.GenerateContext(context.Background(), records, ectx)
}

// GenerateContext is Generate bounded by ctx. Cancellation is checked before
// each rule is evaluated; a cancelled run returns ctx's error and no report.
func (g *Generator) GenerateContext(ctx context.Context, records []types.Record, ectx *types.EvaluationContext) (*types.Report, error) {
	if err := validate(records, ectx); err != nil {
		return nil, err
	}

	compiled, err := compileRules(ectx.Rules, ectx.CanonicalMap)
	if err != nil {
		return nil, err
	}

	canonical := rules.CanonicalizeRecords(records, ectx.CanonicalMap)
	candidates, err := g.buildCandidates(ctx, compiled, canonical)
	if err != nil {
		return nil, err
	}
	for _, r := range compiled {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.RuleID, err)
		}
	}

	return &types.Report{
		GeneratedAt: ectx.CurrentTime,
		Candidates:  applyPolicy(candidates, ectx.Policy),
	}, nil
}

// RecordProvider supplies the ordered record collection.
type RecordProvider interface {
	Records(ctx context.Context) ([]types.Record, error)
}

// ContextProvider supplies rules and the canonical map for a run.
type ContextProvider interface {
	Context(ctx context.Context, currentTime string, policy types.Policy) (*types.EvaluationContext, error)
}

// GenerateFrom loads inputs from providers and generates a report.
// Provider failures are returned wrapped; validation failures keep their kind.
func (g *Generator) GenerateFrom(ctx context.Context, rp RecordProvider, cp ContextProvider, currentTime string, policy types.Policy) (*types.Report, error) {
	records, err := rp.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	ectx, err := cp.Context(ctx, currentTime, policy)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	return g.GenerateContext(ctx, records, ectx)
}

// validate checks the four input kinds in order.
func validate(records []types.Record, ectx *types.EvaluationContext) error {
	for i := range records {
		if records[i].ID == "" {
			return fmt.Errorf("%w: record %d: %v", types.ErrInvalidRecords, i, types.ErrRecordID)
		}
	}

	if ectx == nil {
		return fmt.Errorf("%w: missing evaluation context", types.ErrInvalidContext)
	}
	if _, _, err := types.ParseTime(ectx.CurrentTime); err != nil {
		return fmt.Errorf("%w: currentTime %q: %v", types.ErrInvalidContext, ectx.CurrentTime, err)
	}

	for i, r := range ectx.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d: missing id", types.ErrInvalidRuleDefinition, i)
		}
		if r.Expression.Kind == types.ExpressionUnset {
			return fmt.Errorf("%w: rule %q: missing expression", types.ErrInvalidRuleDefinition, r.ID)
		}
	}

	for raw, canonical := range ectx.CanonicalMap {
		if canonical == "" {
			return fmt.Errorf("%w: %q maps to an empty identifier", types.ErrInvalidCanonicalMapping, raw)
		}
	}
	return nil
}

// compileRules compiles every rule and returns them in report order.
func compileRules(defs []types.Rule, canon types.CanonicalMap) ([]*rules.CompiledRule, error) {
	compiled := make([]*rules.CompiledRule, 0, len(defs))
	for i := range defs {
		c, err := rules.Compile(&defs[i], canon)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", defs[i].ID, err)
		}
		compiled = append(compiled, c)
	}
	slices.SortStableFunc(compiled, func(a, b *rules.CompiledRule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
	return compiled, nil
}

type job struct {
	pos  int
	rule *rules.CompiledRule
}

// buildCandidates evaluates all rules and returns candidates in rule order.
// Rules not yet started when ctx ends are skipped and ctx's error is returned.
func (g *Generator) buildCandidates(ctx context.Context, compiled []*rules.CompiledRule, records []types.Record) ([]types.Candidate, error) {
	jobs := make([]job, len(compiled))
	for i, r := range compiled {
		jobs[i] = job{pos: i, rule: r}
	}
	slices.SortStableFunc(jobs, func(a, b job) int {
		return cmp.Compare(b.rule.Cost, a.rule.Cost)
	})

	mapper := iter.Mapper[job, types.Candidate]{MaxGoroutines: g.workers}
	built := mapper.Map(jobs, func(j *job) types.Candidate {
		if ctx.Err() != nil {
			return types.Candidate{}
		}
		start := time.Now()
		c := BuildCandidate(j.rule, records)
		g.logger.Debug("rule evaluated",
			"rule_id", j.rule.RuleID,
			"cost", j.rule.Cost,
			"matches", c.Stats.Count,
			"duration", time.Since(start))
		return c
	})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("report generation stopped: %w", err)
	}

	out := make([]types.Candidate, len(compiled))
	for i, j := range jobs {
		out[j.pos] = built[i]
	}
	return out, nil
}

// applyPolicy drops empty candidates when asked and truncates to MaxCandidates.
func applyPolicy(candidates []types.Candidate, policy types.Policy) []types.Candidate {
	if policy.ExcludeZeroCandidates {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.Stats.Count > 0 {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	if policy.MaxCandidates > 0 && len(candidates) > policy.MaxCandidates {
		candidates = candidates[:policy.MaxCandidates]
	}
	return candidates
}
