package payroll

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Definitions is the read-only rule set loaded once per run.
type Definitions struct {
	Rules     []DeductionRule     `json:"rules" yaml:"rules"`
	Templates []DeductionTemplate `json:"templates" yaml:"templates"`
	TaxRules  []TaxRule           `json:"taxRules" yaml:"tax_rules"`

	once          sync.Once
	rulesByID     map[string]DeductionRule
	templatesByID map[string]DeductionTemplate
}

func NewDefinitions(rules []DeductionRule, templates []DeductionTemplate, taxRules []TaxRule) *Definitions {
	d := &Definitions{Rules: rules, Templates: templates, TaxRules: taxRules}
	d.index()
	return d
}

func (d *Definitions) index() {
	d.once.Do(d.build)
}

func (d *Definitions) build() {
	rules := append([]DeductionRule(nil), d.Rules...)
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Name != rules[j].Name {
			return rules[i].Name < rules[j].Name
		}
		return rules[i].ID < rules[j].ID
	})
	d.Rules = rules
	d.rulesByID = make(map[string]DeductionRule, len(d.Rules))
	for _, rule := range d.Rules {
		d.rulesByID[rule.ID] = rule
	}
	d.templatesByID = make(map[string]DeductionTemplate, len(d.Templates))
	for _, tpl := range d.Templates {
		d.templatesByID[tpl.ID] = tpl
	}
}

func (d *Definitions) Rule(id string) (DeductionRule, bool) {
	d.index()
	rule, ok := d.rulesByID[id]
	return rule, ok
}

func (d *Definitions) Template(id string) (DeductionTemplate, bool) {
	d.index()
	tpl, ok := d.templatesByID[id]
	return tpl, ok
}

// RulesFor lists the rules to try for an employee: the template's rules in
// order when a template is named, otherwise every rule for the category.
func (d *Definitions) RulesFor(emp EmployeeInput) ([]DeductionRule, error) {
	d.index()
	if emp.TemplateID != "" {
		tpl, ok := d.templatesByID[emp.TemplateID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, emp.TemplateID)
		}
		return ResolveTemplate(tpl, d.rulesByID, emp.Category)
	}
	var out []DeductionRule
	for _, rule := range d.Rules {
		if rule.Status == RuleStatusActive && rule.MatchesCategory(emp.Category) {
			out = append(out, rule)
		}
	}
	return out, nil
}

type Engine struct {
	Rounding Rounding
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

func NewEngine(rounding Rounding, logger *slog.Logger) *Engine {
	return &Engine{Rounding: rounding, Logger: logger}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// EvaluateEmployee runs one employee through deductions and tax. existing
// holds deductions already stored for this run, keyed by rule id.
func (e *Engine) EvaluateEmployee(defs *Definitions, runID string, emp EmployeeInput, existing map[string]PayrollDeduction) (EmployeeResult, error) {
	emp.Category = strings.TrimSpace(emp.Category)
	if strings.TrimSpace(emp.EmployeeID) == "" {
		return EmployeeResult{}, fmt.Errorf("%w: employee id is required", ErrInvalidDefinition)
	}

	rules, err := defs.RulesFor(emp)
	if err != nil {
		return EmployeeResult{}, err
	}
	if err := checkAmbiguousRules(rules, emp); err != nil {
		return EmployeeResult{}, err
	}

	result := EmployeeResult{EmployeeID: emp.EmployeeID, Deductions: []PayrollDeduction{}}
	visited := make(map[string]bool, len(rules))
	for _, rule := range rules {
		visited[rule.ID] = true
		var prior *PayrollDeduction
		if d, ok := existing[rule.ID]; ok {
			prior = &d
		}
		d, err := e.ApplyRule(rule, runID, emp, prior)
		if err != nil {
			return EmployeeResult{}, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if d != nil {
			result.Deductions = append(result.Deductions, *d)
		}
	}
	result.Deductions = append(result.Deductions, frozenLeftovers(existing, visited)...)

	taxRule, err := SelectTaxRule(defs.TaxRules, emp.Category, emp.Context.AsOf())
	if err != nil {
		return EmployeeResult{}, err
	}
	if taxRule != nil {
		tax, err := ComputeTax(*taxRule, emp.Context.taxableIncome(), e.Rounding)
		if err != nil {
			return EmployeeResult{}, fmt.Errorf("tax rule %s: %w", taxRule.ID, err)
		}
		result.Tax = &tax
	}

	result.Totals = Summarize(emp.Context.GrossAmount, result.Deductions, result.Tax)
	return result, nil
}

// frozenLeftovers returns stored deductions whose rule no longer applies to the
// employee, e.g. after the rule was deactivated or dropped from a template.
// Stored deductions are never recomputed or removed by a re-run.
func frozenLeftovers(existing map[string]PayrollDeduction, visited map[string]bool) []PayrollDeduction {
	var out []PayrollDeduction
	for ruleID, d := range existing {
		if !visited[ruleID] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RuleName != out[j].RuleName {
			return out[i].RuleName < out[j].RuleName
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// checkAmbiguousRules fails when two versions of the same rule (same name and
// type) are both effective for the employee on the as-of date.
func checkAmbiguousRules(rules []DeductionRule, emp EmployeeInput) error {
	seen := make(map[string][]string)
	var keys []string
	for _, rule := range rules {
		if !eligible(rule, emp) {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(rule.Name)) + "|" + rule.Type
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
		seen[key] = append(seen[key], rule.ID)
	}
	for _, key := range keys {
		if ids := seen[key]; len(ids) > 1 {
			sort.Strings(ids)
			return &AmbiguousRuleError{Category: emp.Category, RuleIDs: ids}
		}
	}
	return nil
}
