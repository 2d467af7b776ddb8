package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hrpay/internal/platform/lock"
)

// DefinitionCache stores a tenant's definitions between runs.
type DefinitionCache interface {
	GetObject(ctx context.Context, key string, dest any) (bool, error)
	SetObject(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Locker serialises approvals of one deduction across replicas.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type JobRunner interface {
	RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error)
}

type MetricsRecorder interface {
	RecordRun(evaluated, failed, created int)
	RecordDecision(approved bool)
	RecordLockContention()
	RecordCache(hit bool)
}

type ServiceOptions struct {
	Cache    DefinitionCache
	CacheTTL time.Duration
	Locker   Locker
	LockTTL  time.Duration
	Jobs     JobRunner
	Metrics  MetricsRecorder
	Workers  int
	Logger   *slog.Logger
}

type Service struct {
	store    StoreAPI
	engine   *Engine
	cache    DefinitionCache
	cacheTTL time.Duration
	locker   Locker
	lockTTL  time.Duration
	jobs     JobRunner
	metrics  MetricsRecorder
	workers  int
	logger   *slog.Logger
}

func NewService(store StoreAPI, engine *Engine, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = NewEngine(RoundHalfUp, logger)
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &Service{
		store:    store,
		engine:   engine,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		locker:   opts.Locker,
		lockTTL:  lockTTL,
		jobs:     opts.Jobs,
		metrics:  opts.Metrics,
		workers:  opts.Workers,
		logger:   logger,
	}
}

// Decision is the before and after state of an approval transition.
type Decision struct {
	Before PayrollDeduction `json:"before"`
	After  PayrollDeduction `json:"after"`
}

type cachedDefinitions struct {
	Rules     []DeductionRule     `json:"rules"`
	Templates []DeductionTemplate `json:"templates"`
	TaxRules  []TaxRule           `json:"taxRules"`
}

func definitionsKey(tenantID string) string {
	return "definitions:" + tenantID
}

// LoadDefinitions returns the tenant's definitions, from the cache when one
// is configured. Cache failures fall back to the store.
func (s *Service) LoadDefinitions(ctx context.Context, tenantID string) (*Definitions, error) {
	if s.cache != nil {
		var cached cachedDefinitions
		hit, err := s.cache.GetObject(ctx, definitionsKey(tenantID), &cached)
		if err != nil {
			s.logger.Warn("definitions cache read failed", "tenantId", tenantID, "err", err)
		}
		s.recordCache(hit)
		if hit {
			return NewDefinitions(cached.Rules, cached.Templates, cached.TaxRules), nil
		}
	}

	defs, err := s.store.LoadDefinitions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		payload := cachedDefinitions{Rules: defs.Rules, Templates: defs.Templates, TaxRules: defs.TaxRules}
		if err := s.cache.SetObject(ctx, definitionsKey(tenantID), payload, s.cacheTTL); err != nil {
			s.logger.Warn("definitions cache write failed", "tenantId", tenantID, "err", err)
		}
	}
	return defs, nil
}

func (s *Service) InvalidateDefinitions(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, definitionsKey(tenantID)); err != nil {
		s.logger.Warn("definitions cache invalidation failed", "tenantId", tenantID, "err", err)
	}
}

func (s *Service) CreateRule(ctx context.Context, tenantID string, rule DeductionRule) (DeductionRule, error) {
	rule = withRuleDefaults(rule)
	if err := ValidateRule(rule); err != nil {
		return DeductionRule{}, err
	}
	created, err := s.store.CreateRule(ctx, tenantID, rule)
	if err != nil {
		return DeductionRule{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return created, nil
}

func withRuleDefaults(rule DeductionRule) DeductionRule {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.EmployeeCategory == "" {
		rule.EmployeeCategory = CategoryAll
	}
	if rule.BaseAmountType == "" {
		rule.BaseAmountType = BaseGross
	}
	if rule.Frequency == "" {
		rule.Frequency = FrequencyMonthly
	}
	if rule.Status == "" {
		rule.Status = RuleStatusDraft
	}
	return rule
}

func (s *Service) GetRule(ctx context.Context, tenantID, ruleID string) (DeductionRule, error) {
	return s.store.GetRule(ctx, tenantID, ruleID)
}

func (s *Service) ListRules(ctx context.Context, tenantID string, filter RuleFilter) ([]DeductionRule, error) {
	return s.store.ListRules(ctx, tenantID, filter)
}

// UpdateRuleStatus moves a rule between draft, active and inactive. Stored
// deductions keep the amounts computed while the rule was active.
func (s *Service) UpdateRuleStatus(ctx context.Context, tenantID, ruleID, status string) (before, after DeductionRule, err error) {
	if !slices.Contains(RuleStatuses, status) {
		return DeductionRule{}, DeductionRule{}, invalid(ErrInvalidDefinition, issues{{Field: "status", Reason: "must be one of draft active inactive"}})
	}
	before, err = s.store.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return DeductionRule{}, DeductionRule{}, err
	}
	after, err = s.store.UpdateRuleStatus(ctx, tenantID, ruleID, status)
	if err != nil {
		return DeductionRule{}, DeductionRule{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return before, after, nil
}

func (s *Service) CreateTemplate(ctx context.Context, tenantID string, tpl DeductionTemplate) (DeductionTemplate, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if err := ValidateTemplate(tpl); err != nil {
		return DeductionTemplate{}, err
	}
	created, err := s.store.CreateTemplate(ctx, tenantID, tpl)
	if err != nil {
		return DeductionTemplate{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return created, nil
}

func (s *Service) GetTemplate(ctx context.Context, tenantID, templateID string) (DeductionTemplate, error) {
	return s.store.GetTemplate(ctx, tenantID, templateID)
}

func (s *Service) ListTemplates(ctx context.Context, tenantID string) ([]DeductionTemplate, error) {
	return s.store.ListTemplates(ctx, tenantID)
}

func (s *Service) AddTemplateRule(ctx context.Context, tenantID, templateID, ruleID string, order int) (DeductionTemplate, error) {
	tpl, err := s.store.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return DeductionTemplate{}, err
	}
	if _, err := s.store.GetRule(ctx, tenantID, ruleID); err != nil {
		return DeductionTemplate{}, err
	}
	updated, err := AddTemplateRule(tpl, ruleID, order)
	if err != nil {
		return DeductionTemplate{}, err
	}
	added := updated.Rules[len(updated.Rules)-1]
	if err := s.store.AddTemplateRule(ctx, tenantID, templateID, added); err != nil {
		return DeductionTemplate{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return updated, nil
}

func (s *Service) RemoveTemplateRule(ctx context.Context, tenantID, templateID, ruleID string) (DeductionTemplate, error) {
	tpl, err := s.store.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return DeductionTemplate{}, err
	}
	updated, err := RemoveTemplateRule(tpl, ruleID)
	if err != nil {
		return DeductionTemplate{}, err
	}
	if err := s.store.RemoveTemplateRule(ctx, tenantID, templateID, ruleID); err != nil {
		return DeductionTemplate{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return updated, nil
}

func (s *Service) ReorderTemplate(ctx context.Context, tenantID, templateID string, ruleIDs []string) (DeductionTemplate, error) {
	tpl, err := s.store.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return DeductionTemplate{}, err
	}
	reordered, err := ReorderTemplate(tpl, ruleIDs)
	if err != nil {
		return DeductionTemplate{}, err
	}
	if err := s.store.ReplaceTemplateOrder(ctx, tenantID, templateID, reordered.Rules); err != nil {
		return DeductionTemplate{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return reordered, nil
}

func (s *Service) CreateTaxRule(ctx context.Context, tenantID string, rule TaxRule) (TaxRule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.EmployeeCategory == "" {
		rule.EmployeeCategory = CategoryAll
	}
	if rule.Status == "" {
		rule.Status = RuleStatusDraft
	}
	if err := ValidateTaxRule(rule); err != nil {
		return TaxRule{}, err
	}
	created, err := s.store.CreateTaxRule(ctx, tenantID, rule)
	if err != nil {
		return TaxRule{}, err
	}
	s.InvalidateDefinitions(ctx, tenantID)
	return created, nil
}

func (s *Service) ListTaxRules(ctx context.Context, tenantID string) ([]TaxRule, error) {
	return s.store.ListTaxRules(ctx, tenantID)
}

// PreviewTax computes tax for an income without storing anything.
func (s *Service) PreviewTax(ctx context.Context, tenantID, category string, income decimal.Decimal, at time.Time) (TaxResult, error) {
	defs, err := s.LoadDefinitions(ctx, tenantID)
	if err != nil {
		return TaxResult{}, err
	}
	rule, err := SelectTaxRule(defs.TaxRules, category, at)
	if err != nil {
		return TaxResult{}, err
	}
	if rule == nil {
		return TaxResult{}, fmt.Errorf("%w: no active rule for category %s on %s", ErrTaxRuleNotFound, category, at.Format(time.DateOnly))
	}
	return ComputeTax(*rule, income, s.engine.Rounding)
}

// RunDeductions evaluates a batch of employees for a run and stores the
// outcome. Deductions stored by an earlier call for the same run are kept as
// they are. Invalid or failing employees are reported in Failures and never
// block the rest of the batch.
func (s *Service) RunDeductions(ctx context.Context, tenantID, runID string, employees []EmployeeInput) (BatchResult, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return BatchResult{}, invalid(ErrInvalidDefinition, issues{{Field: "runId", Reason: "required"}})
	}

	work := func(ctx context.Context) (any, error) {
		return s.runDeductions(ctx, tenantID, runID, employees)
	}
	var out any
	var err error
	if s.jobs != nil {
		out, err = s.jobs.RunNow(ctx, JobDeductionRun, tenantID, work)
	} else {
		out, err = work(ctx)
	}
	if err != nil {
		return BatchResult{}, err
	}
	return out.(BatchResult), nil
}

func (s *Service) runDeductions(ctx context.Context, tenantID, runID string, employees []EmployeeInput) (BatchResult, error) {
	started := time.Now()
	result := BatchResult{RunID: runID, Results: []EmployeeResult{}, Failures: []EmployeeFailure{}}

	valid := make([]EmployeeInput, 0, len(employees))
	for _, emp := range employees {
		if err := ValidateEmployee(emp); err != nil {
			result.Failures = append(result.Failures, EmployeeFailure{EmployeeID: emp.EmployeeID, Reason: err.Error(), Err: err})
			continue
		}
		valid = append(valid, emp)
	}

	defs, err := s.LoadDefinitions(ctx, tenantID)
	if err != nil {
		return BatchResult{}, err
	}
	stored, err := s.store.ListRunDeductions(ctx, tenantID, runID, DeductionFilter{})
	if err != nil {
		return BatchResult{}, err
	}
	existing := make(map[string]map[string]PayrollDeduction)
	for _, d := range stored {
		if existing[d.EmployeeID] == nil {
			existing[d.EmployeeID] = make(map[string]PayrollDeduction)
		}
		existing[d.EmployeeID][d.RuleID] = d
	}

	batch, err := s.engine.EvaluateBatch(ctx, defs, runID, valid, func(employeeID string) map[string]PayrollDeduction {
		return existing[employeeID]
	}, s.workers)
	if err != nil {
		return BatchResult{}, err
	}
	result.Failures = append(result.Failures, batch.Failures...)

	inputs := make(map[string]EmployeeInput, len(valid))
	for _, emp := range valid {
		inputs[emp.EmployeeID] = emp
	}
	created := 0
	for _, res := range batch.Results {
		saved, err := s.store.SaveEmployeeResult(ctx, tenantID, runID, inputs[res.EmployeeID], res)
		if err != nil {
			if ctx.Err() != nil {
				return BatchResult{}, ctx.Err()
			}
			s.logger.Error("saving employee result failed", "runId", runID, "employeeId", res.EmployeeID, "err", err)
			result.Failures = append(result.Failures, EmployeeFailure{EmployeeID: res.EmployeeID, Reason: err.Error(), Err: err})
			continue
		}
		for _, d := range saved.Deductions {
			if _, ok := existing[res.EmployeeID][d.RuleID]; !ok {
				created++
			}
		}
		result.Results = append(result.Results, saved)
	}

	if s.metrics != nil {
		s.metrics.RecordRun(len(result.Results), len(result.Failures), created)
	}
	s.logger.Info("deduction run finished",
		"tenantId", tenantID,
		"runId", runID,
		"employees", len(employees),
		"failed", len(result.Failures),
		"deductionsCreated", created,
		"duration", time.Since(started),
	)
	return result, nil
}

func (s *Service) ListRunDeductions(ctx context.Context, tenantID, runID string, filter DeductionFilter) ([]PayrollDeduction, error) {
	return s.store.ListRunDeductions(ctx, tenantID, runID, filter)
}

func (s *Service) RunTotals(ctx context.Context, tenantID, runID string) ([]RunResult, error) {
	return s.store.ListRunResults(ctx, tenantID, runID)
}

func (s *Service) TaxReport(ctx context.Context, tenantID, runID string) ([]CategoryTaxSummary, error) {
	results, err := s.store.ListRunResults(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	return SummarizeTax(results), nil
}

func (s *Service) ApproveDeduction(ctx context.Context, tenantID, deductionID, approverID string) (Decision, error) {
	return s.decide(ctx, tenantID, deductionID, true, func(current PayrollDeduction) (PayrollDeduction, error) {
		return Approve(current, approverID, s.engine.now())
	})
}

func (s *Service) RejectDeduction(ctx context.Context, tenantID, deductionID, approverID, notes string) (Decision, error) {
	return s.decide(ctx, tenantID, deductionID, false, func(current PayrollDeduction) (PayrollDeduction, error) {
		return Reject(current, approverID, notes, s.engine.now())
	})
}

func (s *Service) decide(ctx context.Context, tenantID, deductionID string, approve bool, fn DecideFunc) (Decision, error) {
	if s.locker != nil {
		release, err := s.locker.Obtain(ctx, "payroll:deduction:"+tenantID+":"+deductionID, s.lockTTL)
		if err != nil {
			if errors.Is(err, lock.ErrNotObtained) {
				if s.metrics != nil {
					s.metrics.RecordLockContention()
				}
				return Decision{}, fmt.Errorf("%w: %s", ErrLockNotObtained, deductionID)
			}
			return Decision{}, err
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("releasing approval lock failed", "deductionId", deductionID, "err", err)
			}
		}()
	}

	before, after, err := s.store.DecideDeduction(ctx, tenantID, deductionID, fn)
	if err != nil {
		return Decision{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordDecision(approve)
	}
	return Decision{Before: before, After: after}, nil
}

// YearEndAdjustment recomputes the year's tax from stored run results and
// compares it with the tax already withheld.
func (s *Service) YearEndAdjustment(ctx context.Context, tenantID, employeeID string, year int) (YearEndAdjustment, error) {
	totals, err := s.store.AnnualTotals(ctx, tenantID, employeeID, year)
	if err != nil {
		return YearEndAdjustment{}, err
	}
	if totals.Runs == 0 {
		return YearEndAdjustment{}, fmt.Errorf("%w: employee %s in %d", ErrNoRunResults, employeeID, year)
	}
	defs, err := s.LoadDefinitions(ctx, tenantID)
	if err != nil {
		return YearEndAdjustment{}, err
	}
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	rule, err := SelectTaxRule(defs.TaxRules, totals.Category, yearEnd)
	if err != nil {
		return YearEndAdjustment{}, err
	}
	if rule == nil {
		return YearEndAdjustment{}, fmt.Errorf("%w: no active rule for category %s at the end of %d", ErrTaxRuleNotFound, totals.Category, year)
	}
	adj, err := ComputeYearEndAdjustment(*rule, employeeID, year, totals.TaxableIncome, totals.TaxWithheld, s.engine.Rounding)
	if err != nil {
		return YearEndAdjustment{}, err
	}
	adj.AnnualGross = totals.Gross
	return adj, nil
}

func (s *Service) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCache(hit)
	}
}
