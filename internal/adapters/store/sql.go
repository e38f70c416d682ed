package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
)

const (
	initialConfidence   = 0.6
	reinforceIncrement  = 0.1
	timestampLayout     = time.RFC3339Nano
	preferenceColumns   = "id, pattern_type, pattern_value, action, confidence, usage_count, created_at"
	selectPreferenceSQL = "SELECT " + preferenceColumns + " FROM preferences"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name   string
	schema []string
	// upsert takes kind, value, action, initial confidence, usage, created_at, increment
	upsert string
	// set takes kind, value, action, confidence, created_at and zeroes usage
	set string
}

// sqlStore implements core.PreferenceStore over database/sql
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger) (*sqlStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, unavailable("create schema", err)
		}
	}
	logger.Debug("Preference store ready", zap.String("backend", d.name))
	return &sqlStore{db: db, dialect: d, logger: logger}, nil
}

// Match returns preferences for the item's sender, domain and subject tokens
func (s *sqlStore) Match(ctx context.Context, item *core.Item) ([]core.Preference, error) {
	var (
		clauses []string
		args    []any
	)
	if item.Sender != "" {
		clauses = append(clauses, "(pattern_type = ? AND pattern_value = ?)")
		args = append(args, string(core.PatternSender), item.Sender)
	}
	if domain := item.Domain(); domain != "" {
		clauses = append(clauses, "(pattern_type = ? AND pattern_value = ?)")
		args = append(args, string(core.PatternDomain), domain)
	}
	if tokens := core.SubjectTokens(item.Subject); len(tokens) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(tokens)), ", ")
		clauses = append(clauses, fmt.Sprintf("(pattern_type = ? AND pattern_value IN (%s))", marks))
		args = append(args, string(core.PatternSubjectKeyword))
		for _, t := range tokens {
			args = append(args, t)
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := selectPreferenceSQL + " WHERE " + strings.Join(clauses, " OR ")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("match preferences", err)
	}
	return scanPreferences(rows)
}

// Reinforce creates or strengthens one preference inside a transaction
func (s *sqlStore) Reinforce(ctx context.Context, kind core.PatternKind, value string, action core.Action) (*core.Preference, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin reinforce", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timestampLayout)
	if _, err := tx.ExecContext(ctx, s.dialect.upsert,
		string(kind), value, string(action), initialConfidence, 1, now, reinforceIncrement); err != nil {
		return nil, unavailable("reinforce preference", err)
	}

	rows, err := tx.QueryContext(ctx, selectPreferenceSQL+" WHERE pattern_type = ? AND pattern_value = ? AND action = ?",
		string(kind), value, string(action))
	if err != nil {
		return nil, unavailable("read reinforced preference", err)
	}
	return commitOne(tx, rows, "reinforce")
}

// Set writes an operator-chosen preference with zero usage
func (s *sqlStore) Set(ctx context.Context, kind core.PatternKind, value string, action core.Action, confidence float64) (*core.Preference, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin set", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timestampLayout)
	if _, err := tx.ExecContext(ctx, s.dialect.set, string(kind), value, string(action), confidence, now); err != nil {
		return nil, unavailable("set preference", err)
	}
	rows, err := tx.QueryContext(ctx, selectPreferenceSQL+" WHERE pattern_type = ? AND pattern_value = ? AND action = ?",
		string(kind), value, string(action))
	if err != nil {
		return nil, unavailable("read preference", err)
	}
	return commitOne(tx, rows, "set")
}

// Delete removes the preference with id
func (s *sqlStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE id = ?", id)
	if err != nil {
		return unavailable("delete preference", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete preference", err)
	}
	if n == 0 {
		return fmt.Errorf("delete preference %d: %w", id, core.ErrPreferenceNotFound)
	}
	return nil
}

// commitOne scans the single row written by op and commits tx
func commitOne(tx *sql.Tx, rows *sql.Rows, op string) (*core.Preference, error) {
	prefs, err := scanPreferences(rows)
	if err != nil {
		return nil, err
	}
	if len(prefs) != 1 {
		return nil, unavailable(op+" preference", fmt.Errorf("found %d rows", len(prefs)))
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit "+op, err)
	}
	return &prefs[0], nil
}

// All lists every preference, strongest first
func (s *sqlStore) All(ctx context.Context) ([]core.Preference, error) {
	rows, err := s.db.QueryContext(ctx, selectPreferenceSQL+" ORDER BY confidence DESC, usage_count DESC, id ASC")
	if err != nil {
		return nil, unavailable("list preferences", err)
	}
	return scanPreferences(rows)
}

// RecordDecision appends to the decision log
func (s *sqlStore) RecordDecision(ctx context.Context, rec *core.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, email_id, sender, subject, action, reasoning, confidence, was_auto_decided, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ItemID, rec.Sender, rec.Subject, string(rec.Action), rec.Rationale,
		rec.Confidence, rec.Auto, rec.DecidedAt.UTC().Format(timestampLayout))
	if err != nil {
		return unavailable("record decision", err)
	}
	return nil
}

// DecisionCounts summarises the decision log by action
func (s *sqlStore) DecisionCounts(ctx context.Context) (*core.DecisionCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*), SUM(CASE WHEN was_auto_decided THEN 1 ELSE 0 END)
		FROM decisions
		GROUP BY action
	`)
	if err != nil {
		return nil, unavailable("count decisions", err)
	}
	defer rows.Close()

	counts := &core.DecisionCounts{ByAction: make(map[core.Action]int)}
	for rows.Next() {
		var (
			action    string
			total     int
			autoCount int
		)
		if err := rows.Scan(&action, &total, &autoCount); err != nil {
			return nil, unavailable("scan decision counts", err)
		}
		counts.ByAction[core.Action(action)] = total
		counts.Total += total
		counts.Auto += autoCount
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("count decisions", err)
	}
	return counts, nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close preference store", zap.String("backend", s.dialect.name), zap.Error(err))
		return err
	}
	return nil
}

func scanPreferences(rows *sql.Rows) ([]core.Preference, error) {
	defer rows.Close()
	var prefs []core.Preference
	for rows.Next() {
		var (
			p         core.Preference
			kind      string
			action    string
			createdAt string
		)
		if err := rows.Scan(&p.ID, &kind, &p.Value, &action, &p.Confidence, &p.UsageCount, &createdAt); err != nil {
			return nil, unavailable("scan preference", err)
		}
		p.Kind = core.PatternKind(kind)
		p.Action = core.Action(action)
		if t, err := time.Parse(timestampLayout, createdAt); err == nil {
			p.CreatedAt = t
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan preferences", err)
	}
	return prefs, nil
}
