package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/cratedigger/internal/types"
)

// ErrReportNotFound indicates no stored report has the requested ID.
var ErrReportNotFound = errors.New("report not found")

// Expression kinds as stored in rules.expression_kind.
const (
	exprKindText = "text"
	exprKindTree = "tree"
)

// Catalog is the persistent record collection, rule set and canonical map.
// It satisfies report.RecordProvider and report.ContextProvider, and stores
// generated reports for later retrieval.
type Catalog struct {
	db  *sqlx.DB
	q   *Queries
	now func() time.Time
}

// NewCatalog wraps an open, migrated database.
func NewCatalog(db *sqlx.DB) (*Catalog, error) {
	q, err := LoadQueries()
	if err != nil {
		return nil, err
	}
	return &Catalog{db: db, q: q, now: time.Now}, nil
}

type trackRow struct {
	ID              string          `db:"track_id"`
	Title           sql.NullString  `db:"title"`
	Artists         string          `db:"artists"`
	AlbumID         sql.NullString  `db:"album_id"`
	DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
	BPM             sql.NullFloat64 `db:"bpm"`
	Key             sql.NullString  `db:"musical_key"`
	ReleaseDate     sql.NullString  `db:"release_date"`
	Tags            string          `db:"tags"`
	Metadata        string          `db:"metadata"`
}

func (r trackRow) record() (types.Record, error) {
	rec := types.Record{
		ID:              r.ID,
		Title:           nullString(r.Title),
		AlbumID:         nullString(r.AlbumID),
		DurationSeconds: nullFloat(r.DurationSeconds),
		BPM:             nullFloat(r.BPM),
		Key:             nullString(r.Key),
	}
	if r.ReleaseDate.Valid {
		t, _, err := types.ParseTime(r.ReleaseDate.String)
		if err != nil {
			return types.Record{}, fmt.Errorf("track %s: release_date %q: %w", r.ID, r.ReleaseDate.String, err)
		}
		rec.ReleaseDate = &t
	}
	if err := json.Unmarshal([]byte(r.Artists), &rec.Artists); err != nil {
		return types.Record{}, fmt.Errorf("track %s: artists: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Tags), &rec.Tags); err != nil {
		return types.Record{}, fmt.Errorf("track %s: tags: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &rec.Metadata); err != nil {
		return types.Record{}, fmt.Errorf("track %s: metadata: %w", r.ID, err)
	}
	return rec, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// jsonText encodes v, substituting empty when v encodes as null.
func jsonText(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

// Records returns every stored track ordered by ID.
func (c *Catalog) Records(ctx context.Context) ([]types.Record, error) {
	var rows []trackRow
	if err := c.q.Select(ctx, c.db, "list-tracks", &rows); err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}

	records := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpsertRecords inserts or replaces tracks in a single transaction.
func (c *Catalog) UpsertRecords(ctx context.Context, records []types.Record) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updatedAt := c.now().UTC().Format(time.RFC3339)
	for _, rec := range records {
		if rec.ID == "" {
			return types.ErrRecordID
		}
		artists, err := jsonText(rec.Artists, "[]")
		if err != nil {
			return err
		}
		tags, err := jsonText(rec.Tags, "[]")
		if err != nil {
			return err
		}
		metadata, err := jsonText(rec.Metadata, "{}")
		if err != nil {
			return err
		}
		var releaseDate any
		if rec.ReleaseDate != nil {
			releaseDate = rec.ReleaseDate.UTC().Format(time.RFC3339Nano)
		}

		_, err = c.q.Exec(ctx, tx, "upsert-track",
			rec.ID, optString(rec.Title), artists, optString(rec.AlbumID),
			optFloat(rec.DurationSeconds), optFloat(rec.BPM), optString(rec.Key),
			releaseDate, tags, metadata, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert track %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

type ruleRow struct {
	ID         string `db:"rule_id"`
	Priority   int    `db:"priority"`
	Label      string `db:"label"`
	Kind       string `db:"expression_kind"`
	Expression string `db:"expression"`
}

// Rules returns the stored rule set ordered by priority desc, then ID.
func (c *Catalog) Rules(ctx context.Context) ([]types.Rule, error) {
	var rows []ruleRow
	if err := c.q.Select(ctx, c.db, "list-rules", &rows); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	out := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		rule := types.Rule{ID: row.ID, Priority: row.Priority, Label: row.Label}
		switch row.Kind {
		case exprKindText:
			rule.Expression = types.TextExpression(row.Expression)
		case exprKindTree:
			rule.Expression = types.TreeJSONExpression(json.RawMessage(row.Expression))
		default:
			return nil, fmt.Errorf("rule %s: unknown expression kind %q", row.ID, row.Kind)
		}
		out = append(out, rule)
	}
	return out, nil
}

// UpsertRule inserts or replaces a rule. Tree expressions are stored as
// their JSON encoding and decoded again at compile time.
func (c *Catalog) UpsertRule(ctx context.Context, rule types.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id must be non-empty", types.ErrInvalidRuleDefinition)
	}

	var kind, expr string
	switch rule.Expression.Kind {
	case types.ExpressionText:
		kind, expr = exprKindText, rule.Expression.Text
	case types.ExpressionTree:
		b, err := rule.Expression.MarshalJSON()
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		kind, expr = exprKindTree, string(b)
	default:
		return fmt.Errorf("%w: rule %s has no expression", types.ErrInvalidRuleDefinition, rule.ID)
	}

	_, err := c.q.Exec(ctx, c.db, "upsert-rule",
		rule.ID, rule.Priority, rule.Label, kind, expr, c.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

// DeleteRule removes a rule. Deleting an unknown rule is not an error.
func (c *Catalog) DeleteRule(ctx context.Context, id string) error {
	if _, err := c.q.Exec(ctx, c.db, "delete-rule", id); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}

// CanonicalMap returns the stored raw-to-canonical identifier mapping.
// Returns nil when no mappings exist.
func (c *Catalog) CanonicalMap(ctx context.Context) (types.CanonicalMap, error) {
	var rows []struct {
		Raw       string `db:"raw_id"`
		Canonical string `db:"canonical_id"`
	}
	if err := c.q.Select(ctx, c.db, "list-canonical-ids", &rows); err != nil {
		return nil, fmt.Errorf("failed to list canonical ids: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	m := make(types.CanonicalMap, len(rows))
	for _, row := range rows {
		m[row.Raw] = row.Canonical
	}
	return m, nil
}

// PutCanonicalID maps raw onto canonical, replacing any previous mapping.
func (c *Catalog) PutCanonicalID(ctx context.Context, raw, canonical string) error {
	if canonical == "" {
		return fmt.Errorf("%w: %q maps to an empty identifier", types.ErrInvalidCanonicalMapping, raw)
	}
	if _, err := c.q.Exec(ctx, c.db, "upsert-canonical-id", raw, canonical); err != nil {
		return fmt.Errorf("failed to store canonical id %s: %w", raw, err)
	}
	return nil
}

// Context assembles an evaluation context from the stored rules and
// canonical map.
func (c *Catalog) Context(ctx context.Context, currentTime string, policy types.Policy) (*types.EvaluationContext, error) {
	rules, err := c.Rules(ctx)
	if err != nil {
		return nil, err
	}
	canon, err := c.CanonicalMap(ctx)
	if err != nil {
		return nil, err
	}
	return &types.EvaluationContext{
		CurrentTime:  currentTime,
		Rules:        rules,
		CanonicalMap: canon,
		Policy:       policy,
	}, nil
}

// SaveReport stores a report and its candidate index in one transaction.
func (c *Catalog) SaveReport(ctx context.Context, rep *types.Report) (types.ReportID, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	id := types.NewReportID()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = c.q.Exec(ctx, tx, "insert-report",
		string(id), rep.GeneratedAt, len(rep.Candidates), string(body), c.now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to insert report: %w", err)
	}

	for i, cand := range rep.Candidates {
		_, err := c.q.Exec(ctx, tx, "insert-report-candidate", string(id), i, cand.RuleID, cand.Stats.Count)
		if err != nil {
			return "", fmt.Errorf("failed to insert candidate %s: %w", cand.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit report: %w", err)
	}
	return id, nil
}

// GetReport loads a stored report.
func (c *Catalog) GetReport(ctx context.Context, id types.ReportID) (*types.Report, error) {
	var row struct {
		ID             string `db:"report_id"`
		GeneratedAt    string `db:"generated_at"`
		CandidateCount int    `db:"candidate_count"`
		Body           string `db:"body"`
	}
	err := c.q.Get(ctx, c.db, "get-report", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}

	var rep types.Report
	if err := json.Unmarshal([]byte(row.Body), &rep); err != nil {
		return nil, fmt.Errorf("report %s: corrupt body: %w", id, err)
	}
	if len(rep.Candidates) != row.CandidateCount {
		return nil, fmt.Errorf("report %s: body has %d candidates, index has %d", id, len(rep.Candidates), row.CandidateCount)
	}
	return &rep, nil
}

// ReportSummary is one entry of the stored report listing.
type ReportSummary struct {
	ID             types.ReportID
	GeneratedAt    string
	CandidateCount int
}

// ListReports returns up to limit stored reports, newest first.
func (c *Catalog) ListReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	var rows []struct {
		ID             string `db:"report_id"`
		GeneratedAt    string `db:"generated_at"`
		CandidateCount int    `db:"candidate_count"`
	}
	if err := c.q.Select(ctx, c.db, "list-reports", &rows, limit); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	out := make([]ReportSummary, len(rows))
	for i, row := range rows {
		out[i] = ReportSummary{ID: types.ReportID(row.ID), GeneratedAt: row.GeneratedAt, CandidateCount: row.CandidateCount}
	}
	return out, nil
}
