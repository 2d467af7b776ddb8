package payroll

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hrpay/internal/platform/db"
)

const ruleColumns = `
    id::text, name, description, rule_type, calculation_method, amount, percentage,
    frequency, effective_from, effective_until, requires_approval, auto_apply,
    employee_category, base_amount_type, status, tiers_json, created_at, updated_at`

func scanRule(row scanner) (DeductionRule, error) {
	var rule DeductionRule
	var amount, percentage decimal.NullDecimal
	var tiersJSON []byte
	if err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Type, &rule.CalculationMethod, &amount, &percentage,
		&rule.Frequency, &rule.EffectiveFrom, &rule.EffectiveUntil, &rule.RequiresApproval, &rule.AutoApply,
		&rule.EmployeeCategory, &rule.BaseAmountType, &rule.Status, &tiersJSON, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return DeductionRule{}, err
	}
	rule.Amount = decimalPtr(amount)
	rule.Percentage = decimalPtr(percentage)
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &rule.Tiers); err != nil {
			return DeductionRule{}, fmt.Errorf("rule %s tiers: %w", rule.ID, err)
		}
	}
	return rule, nil
}

func (s *Store) CreateRule(ctx context.Context, tenantID string, rule DeductionRule) (DeductionRule, error) {
	tiers := rule.Tiers
	if tiers == nil {
		tiers = []Tier{}
	}
	tiersJSON, err := marshalJSON(tiers)
	if err != nil {
		return DeductionRule{}, err
	}

	var created DeductionRule
	err = withTx(ctx, s.DB, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
      INSERT INTO payroll_deduction_rules (
        tenant_id, name, description, rule_type, calculation_method, amount, percentage,
        frequency, effective_from, effective_until, requires_approval, auto_apply,
        employee_category, base_amount_type, status, tiers_json
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
      RETURNING `+ruleColumns,
			tenantID, rule.Name, rule.Description, rule.Type, rule.CalculationMethod,
			nullDecimal(rule.Amount), nullDecimal(rule.Percentage), rule.Frequency,
			dateArg(rule.EffectiveFrom), dateArgPtr(rule.EffectiveUntil), rule.RequiresApproval, rule.AutoApply,
			rule.EmployeeCategory, rule.BaseAmountType, rule.Status, tiersJSON,
		)
		var err error
		created, err = scanRule(row)
		if err != nil {
			return err
		}
		created.Conditions, err = insertConditions(ctx, tx, created.ID, rule.Conditions)
		return err
	})
	if err != nil {
		return DeductionRule{}, err
	}
	return created, nil
}

func insertConditions(ctx context.Context, tx db.Querier, ruleID string, conditions []DeductionCondition) ([]DeductionCondition, error) {
	out := make([]DeductionCondition, 0, len(conditions))
	for i, cond := range conditions {
		valueJSON, err := json.Marshal(cond.Value)
		if err != nil {
			return nil, err
		}
		if err := tx.QueryRow(ctx, `
      INSERT INTO payroll_deduction_conditions (rule_id, position, field, operator, value_json, amount, percentage)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      RETURNING id::text
    `, ruleID, i, cond.Field, cond.Operator, valueJSON, nullDecimal(cond.Amount), nullDecimal(cond.Percentage)).Scan(&cond.ID); err != nil {
			return nil, err
		}
		cond.RuleID = ruleID
		out = append(out, cond)
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, tenantID, ruleID string) (DeductionRule, error) {
	rule, err := scanRule(s.DB.QueryRow(ctx, `
    SELECT `+ruleColumns+`
    FROM payroll_deduction_rules
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, ruleID))
	if err != nil {
		return DeductionRule{}, notFound(err, ErrRuleNotFound, ruleID)
	}
	conditions, err := s.loadConditions(ctx, tenantID, []string{rule.ID})
	if err != nil {
		return DeductionRule{}, err
	}
	rule.Conditions = conditions[rule.ID]
	return rule, nil
}

func (s *Store) ListRules(ctx context.Context, tenantID string, filter RuleFilter) ([]DeductionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM payroll_deduction_rules WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND employee_category = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND rule_type = $%d", len(args))
	}
	query += " ORDER BY name, id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []DeductionRule
	var ids []string
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
		ids = append(ids, rule.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return rules, nil
	}

	conditions, err := s.loadConditions(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Conditions = conditions[rules[i].ID]
	}
	return rules, nil
}

func (s *Store) loadConditions(ctx context.Context, tenantID string, ruleIDs []string) (map[string][]DeductionCondition, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT c.id::text, c.rule_id::text, c.field, c.operator, c.value_json, c.amount, c.percentage
    FROM payroll_deduction_conditions c
    JOIN payroll_deduction_rules r ON r.id = c.rule_id
    WHERE r.tenant_id = $1 AND c.rule_id::text = ANY($2)
    ORDER BY c.rule_id, c.position
  `, tenantID, ruleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]DeductionCondition, len(ruleIDs))
	for rows.Next() {
		var cond DeductionCondition
		var valueJSON []byte
		var amount, percentage decimal.NullDecimal
		if err := rows.Scan(&cond.ID, &cond.RuleID, &cond.Field, &cond.Operator, &valueJSON, &amount, &percentage); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(valueJSON, &cond.Value); err != nil {
			return nil, fmt.Errorf("condition %s value: %w", cond.ID, err)
		}
		cond.Amount = decimalPtr(amount)
		cond.Percentage = decimalPtr(percentage)
		out[cond.RuleID] = append(out[cond.RuleID], cond)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRuleStatus(ctx context.Context, tenantID, ruleID, status string) (DeductionRule, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_deduction_rules
    SET status = $3, updated_at = now()
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, ruleID, status)
	if err != nil {
		return DeductionRule{}, err
	}
	if tag.RowsAffected() == 0 {
		return DeductionRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	return s.GetRule(ctx, tenantID, ruleID)
}

func (s *Store) CreateTemplate(ctx context.Context, tenantID string, tpl DeductionTemplate) (DeductionTemplate, error) {
	var created DeductionTemplate
	err := withTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
      INSERT INTO payroll_deduction_templates (tenant_id, name, description)
      VALUES ($1,$2,$3)
      RETURNING id::text, name, description, created_at
    `, tenantID, tpl.Name, tpl.Description).Scan(&created.ID, &created.Name, &created.Description, &created.CreatedAt); err != nil {
			return err
		}
		for _, entry := range tpl.Rules {
			if err := insertTemplateRule(ctx, tx, tenantID, created.ID, entry); err != nil {
				return err
			}
		}
		entries, err := orderedEntries(tpl)
		if err != nil {
			return err
		}
		created.Rules = entries
		return nil
	})
	if err != nil {
		return DeductionTemplate{}, err
	}
	return created, nil
}

// insertTemplateRule only links rules owned by the same tenant.
func insertTemplateRule(ctx context.Context, tx db.Querier, tenantID, templateID string, entry TemplateRule) error {
	tag, err := tx.Exec(ctx, `
    INSERT INTO payroll_template_rules (template_id, rule_id, "order")
    SELECT $2::uuid, r.id, $4
    FROM payroll_deduction_rules r
    WHERE r.tenant_id = $1 AND r.id::text = $3
  `, tenantID, templateID, entry.RuleID, entry.Order)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, entry.RuleID)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, tenantID, templateID string) (DeductionTemplate, error) {
	var tpl DeductionTemplate
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, name, description, created_at
    FROM payroll_deduction_templates
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, templateID).Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.CreatedAt)
	if err != nil {
		return DeductionTemplate{}, notFound(err, ErrTemplateNotFound, templateID)
	}
	entries, err := s.loadTemplateRules(ctx, tenantID, []string{tpl.ID})
	if err != nil {
		return DeductionTemplate{}, err
	}
	tpl.Rules = entries[tpl.ID]
	return tpl, nil
}

func (s *Store) ListTemplates(ctx context.Context, tenantID string) ([]DeductionTemplate, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, name, description, created_at
    FROM payroll_deduction_templates
    WHERE tenant_id = $1
    ORDER BY name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []DeductionTemplate
	var ids []string
	for rows.Next() {
		var tpl DeductionTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
		ids = append(ids, tpl.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return templates, nil
	}
	entries, err := s.loadTemplateRules(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		templates[i].Rules = entries[templates[i].ID]
	}
	return templates, nil
}

func (s *Store) loadTemplateRules(ctx context.Context, tenantID string, templateIDs []string) (map[string][]TemplateRule, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT tr.template_id::text, tr.rule_id::text, tr."order"
    FROM payroll_template_rules tr
    JOIN payroll_deduction_templates t ON t.id = tr.template_id
    WHERE t.tenant_id = $1 AND tr.template_id::text = ANY($2)
    ORDER BY tr.template_id, tr."order"
  `, tenantID, templateIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]TemplateRule, len(templateIDs))
	for rows.Next() {
		var templateID string
		var entry TemplateRule
		if err := rows.Scan(&templateID, &entry.RuleID, &entry.Order); err != nil {
			return nil, err
		}
		out[templateID] = append(out[templateID], entry)
	}
	return out, rows.Err()
}

func (s *Store) AddTemplateRule(ctx context.Context, tenantID, templateID string, entry TemplateRule) error {
	return withTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := lockTemplate(ctx, tx, tenantID, templateID); err != nil {
			return err
		}
		return insertTemplateRule(ctx, tx, tenantID, templateID, entry)
	})
}

func (s *Store) RemoveTemplateRule(ctx context.Context, tenantID, templateID, ruleID string) error {
	tag, err := s.DB.Exec(ctx, `
    DELETE FROM payroll_template_rules tr
    USING payroll_deduction_templates t
    WHERE t.id = tr.template_id AND t.tenant_id = $1 AND tr.template_id::text = $2 AND tr.rule_id::text = $3
  `, tenantID, templateID, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s in template %s", ErrRuleNotFound, ruleID, templateID)
	}
	return nil
}

// ReplaceTemplateOrder rewrites every order value in one statement. The
// unique (template_id, order) constraint is deferred to commit, so the
// intermediate permutation never trips it.
func (s *Store) ReplaceTemplateOrder(ctx context.Context, tenantID, templateID string, entries []TemplateRule) error {
	ruleIDs := make([]string, 0, len(entries))
	orders := make([]int32, 0, len(entries))
	for _, entry := range entries {
		ruleIDs = append(ruleIDs, entry.RuleID)
		orders = append(orders, int32(entry.Order))
	}
	return withTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := lockTemplate(ctx, tx, tenantID, templateID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
      UPDATE payroll_template_rules tr
      SET "order" = v.new_order
      FROM unnest($2::text[], $3::int[]) AS v(rule_id, new_order)
      WHERE tr.template_id::text = $1 AND tr.rule_id::text = v.rule_id
    `, templateID, ruleIDs, orders)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != len(entries) {
			return fmt.Errorf("%w: template %s changed concurrently", ErrInvalidReorder, templateID)
		}
		return nil
	})
}

func lockTemplate(ctx context.Context, tx db.Querier, tenantID, templateID string) error {
	var id string
	err := tx.QueryRow(ctx, `
    SELECT id::text FROM payroll_deduction_templates
    WHERE tenant_id = $1 AND id::text = $2
    FOR UPDATE
  `, tenantID, templateID).Scan(&id)
	return notFound(err, ErrTemplateNotFound, templateID)
}

const taxRuleColumns = `
    id::text, name, calculation_method, rate, employee_category,
    effective_from, effective_until, status, created_at`

func scanTaxRule(row scanner) (TaxRule, error) {
	var rule TaxRule
	err := row.Scan(&rule.ID, &rule.Name, &rule.CalculationMethod, &rule.Rate, &rule.EmployeeCategory,
		&rule.EffectiveFrom, &rule.EffectiveUntil, &rule.Status, &rule.CreatedAt)
	return rule, err
}

func (s *Store) CreateTaxRule(ctx context.Context, tenantID string, rule TaxRule) (TaxRule, error) {
	var created TaxRule
	err := withTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		created, err = scanTaxRule(tx.QueryRow(ctx, `
      INSERT INTO payroll_tax_rules (tenant_id, name, calculation_method, rate, employee_category, effective_from, effective_until, status)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
      RETURNING `+taxRuleColumns,
			tenantID, rule.Name, rule.CalculationMethod, rule.Rate, rule.EmployeeCategory,
			dateArg(rule.EffectiveFrom), dateArgPtr(rule.EffectiveUntil), rule.Status,
		))
		if err != nil {
			return err
		}
		for _, bracket := range sortedBrackets(rule.Brackets) {
			if err := tx.QueryRow(ctx, `
        INSERT INTO payroll_tax_brackets (tax_rule_id, income_from, income_to, rate)
        VALUES ($1,$2,$3,$4)
        RETURNING id::text
      `, created.ID, bracket.IncomeFrom, nullDecimal(bracket.IncomeTo), bracket.Rate).Scan(&bracket.ID); err != nil {
				return err
			}
			created.Brackets = append(created.Brackets, bracket)
		}
		return nil
	})
	if err != nil {
		return TaxRule{}, err
	}
	return created, nil
}

func (s *Store) GetTaxRule(ctx context.Context, tenantID, taxRuleID string) (TaxRule, error) {
	rule, err := scanTaxRule(s.DB.QueryRow(ctx, `
    SELECT `+taxRuleColumns+`
    FROM payroll_tax_rules
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, taxRuleID))
	if err != nil {
		return TaxRule{}, notFound(err, ErrTaxRuleNotFound, taxRuleID)
	}
	brackets, err := s.loadBrackets(ctx, tenantID, []string{rule.ID})
	if err != nil {
		return TaxRule{}, err
	}
	rule.Brackets = brackets[rule.ID]
	return rule, nil
}

func (s *Store) ListTaxRules(ctx context.Context, tenantID string) ([]TaxRule, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+taxRuleColumns+`
    FROM payroll_tax_rules
    WHERE tenant_id = $1
    ORDER BY employee_category, effective_from, id
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []TaxRule
	var ids []string
	for rows.Next() {
		rule, err := scanTaxRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
		ids = append(ids, rule.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return rules, nil
	}
	brackets, err := s.loadBrackets(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Brackets = brackets[rules[i].ID]
	}
	return rules, nil
}

func (s *Store) loadBrackets(ctx context.Context, tenantID string, taxRuleIDs []string) (map[string][]TaxBracket, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT b.id::text, b.tax_rule_id::text, b.income_from, b.income_to, b.rate
    FROM payroll_tax_brackets b
    JOIN payroll_tax_rules r ON r.id = b.tax_rule_id
    WHERE r.tenant_id = $1 AND b.tax_rule_id::text = ANY($2)
    ORDER BY b.tax_rule_id, b.income_from
  `, tenantID, taxRuleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]TaxBracket, len(taxRuleIDs))
	for rows.Next() {
		var ruleID string
		var bracket TaxBracket
		var incomeTo decimal.NullDecimal
		if err := rows.Scan(&bracket.ID, &ruleID, &bracket.IncomeFrom, &incomeTo, &bracket.Rate); err != nil {
			return nil, err
		}
		bracket.IncomeTo = decimalPtr(incomeTo)
		out[ruleID] = append(out[ruleID], bracket)
	}
	return out, rows.Err()
}

// LoadDefinitions reads every rule, template and tax rule for a tenant.
// Drafts are included; eligibility filters them during evaluation.
func (s *Store) LoadDefinitions(ctx context.Context, tenantID string) (*Definitions, error) {
	rules, err := s.ListRules(ctx, tenantID, RuleFilter{})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	templates, err := s.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	taxRules, err := s.ListTaxRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tax rules: %w", err)
	}
	return NewDefinitions(rules, templates, taxRules), nil
}
