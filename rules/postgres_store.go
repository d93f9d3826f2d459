package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Conditions and presets are stored as JSONB documents on the rule row.
type PostgresRuleStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:  db,
		now: time.Now,
	}
}

const ruleColumns = `id, tenant_id, name, description, enabled, event_type, priority,
	condition_logic, run_mode, random_count, conditions, presets, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var conditionsJSON, presetsJSON []byte
	err := row.Scan(
		&r.ID,
		&r.TenantID,
		&r.Name,
		&r.Description,
		&r.Enabled,
		&r.EventType,
		&r.Priority,
		&r.ConditionLogic,
		&r.RunMode,
		&r.RandomCount,
		&conditionsJSON,
		&presetsJSON,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditionsJSON, &r.Conditions); err != nil {
		return nil, fmt.Errorf("invalid conditions for rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(presetsJSON, &r.Presets); err != nil {
		return nil, fmt.Errorf("invalid presets for rule %s: %w", r.ID, err)
	}
	return &r, nil
}

func marshalParts(rule *Rule) ([]byte, []byte, error) {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	presets := rule.Presets
	if presets == nil {
		presets = []Preset{}
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	presetsJSON, err := json.Marshal(presets)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal presets: %w", err)
	}
	return conditionsJSON, presetsJSON, nil
}

// List returns all rules for the tenant
func (s *PostgresRuleStore) List(ctx context.Context, tenantID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM triggers
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rulesList := []*Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM triggers
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return r, nil
}

// Create inserts a new rule. The tenant's rule count is checked and the row
// inserted under a transaction-scoped advisory lock on the tenant id, so two
// concurrent creates cannot both take the last slot.
func (s *PostgresRuleStore) Create(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	stored := rule.Clone()
	prepareRule(stored, s.now())
	conditionsJSON, presetsJSON, err := marshalParts(stored)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, stored.TenantID); err != nil {
		return nil, fmt.Errorf("failed to lock tenant: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM triggers WHERE tenant_id = $1
	`, stored.TenantID).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}
	if count >= MaxRulesPerTenant {
		return nil, fmt.Errorf("%w: tenant %s already holds %d rules", ErrRuleLimitExceeded, stored.TenantID, count)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO triggers (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, stored.ID, stored.TenantID, stored.Name, stored.Description, stored.Enabled,
		stored.EventType, stored.Priority, stored.ConditionLogic, stored.RunMode,
		stored.RandomCount, conditionsJSON, presetsJSON, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rule: %w", err)
	}
	return stored, nil
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(ctx context.Context, tenantID, ruleID string, patch RulePatch) (*Rule, error) {
	// Check if rule exists
	rule, err := s.Get(ctx, tenantID, ruleID)
	if err != nil || rule == nil {
		return nil, err
	}

	patch.Apply(rule)
	normalizeRule(rule)
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.now()

	conditionsJSON, presetsJSON, err := marshalParts(rule)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE triggers
		SET name = $1, description = $2, enabled = $3, event_type = $4, priority = $5,
			condition_logic = $6, run_mode = $7, random_count = $8,
			conditions = $9, presets = $10, updated_at = $11
		WHERE id = $12 AND tenant_id = $13
	`, rule.Name, rule.Description, rule.Enabled, rule.EventType, rule.Priority,
		rule.ConditionLogic, rule.RunMode, rule.RandomCount,
		conditionsJSON, presetsJSON, rule.UpdatedAt, ruleID, tenantID)

	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return rule, nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(ctx context.Context, tenantID, ruleID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM triggers
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID)

	if err != nil {
		return false, fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
