package payrollhandler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"hrpay/internal/domain/auth"
	"hrpay/internal/domain/payroll"
	"hrpay/internal/transport/http/api"
	"hrpay/internal/transport/http/middleware"
	"hrpay/internal/transport/http/shared"
)

type Service interface {
	CreateRule(ctx context.Context, tenantID string, rule payroll.DeductionRule) (payroll.DeductionRule, error)
	GetRule(ctx context.Context, tenantID, ruleID string) (payroll.DeductionRule, error)
	ListRules(ctx context.Context, tenantID string, filter payroll.RuleFilter) ([]payroll.DeductionRule, error)
	UpdateRuleStatus(ctx context.Context, tenantID, ruleID, status string) (payroll.DeductionRule, payroll.DeductionRule, error)
	CreateTemplate(ctx context.Context, tenantID string, tpl payroll.DeductionTemplate) (payroll.DeductionTemplate, error)
	GetTemplate(ctx context.Context, tenantID, templateID string) (payroll.DeductionTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]payroll.DeductionTemplate, error)
	AddTemplateRule(ctx context.Context, tenantID, templateID, ruleID string, order int) (payroll.DeductionTemplate, error)
	RemoveTemplateRule(ctx context.Context, tenantID, templateID, ruleID string) (payroll.DeductionTemplate, error)
	ReorderTemplate(ctx context.Context, tenantID, templateID string, ruleIDs []string) (payroll.DeductionTemplate, error)
	CreateTaxRule(ctx context.Context, tenantID string, rule payroll.TaxRule) (payroll.TaxRule, error)
	ListTaxRules(ctx context.Context, tenantID string) ([]payroll.TaxRule, error)
	PreviewTax(ctx context.Context, tenantID, category string, income decimal.Decimal, at time.Time) (payroll.TaxResult, error)
	RunDeductions(ctx context.Context, tenantID, runID string, employees []payroll.EmployeeInput) (payroll.BatchResult, error)
	ListRunDeductions(ctx context.Context, tenantID, runID string, filter payroll.DeductionFilter) ([]payroll.PayrollDeduction, error)
	RunTotals(ctx context.Context, tenantID, runID string) ([]payroll.RunResult, error)
	TaxReport(ctx context.Context, tenantID, runID string) ([]payroll.CategoryTaxSummary, error)
	Register(ctx context.Context, tenantID, runID string) (payroll.Register, error)
	ApproveDeduction(ctx context.Context, tenantID, deductionID, approverID string) (payroll.Decision, error)
	RejectDeduction(ctx context.Context, tenantID, deductionID, approverID, notes string) (payroll.Decision, error)
	YearEndAdjustment(ctx context.Context, tenantID, employeeID string, year int) (payroll.YearEndAdjustment, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

type Handler struct {
	Service Service
	Audit   AuditRecorder
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, audit AuditRecorder, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Audit: audit, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermPayrollRead, h.Perms)
	write := middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)
	run := middleware.RequirePermission(auth.PermPayrollRun, h.Perms)
	approve := middleware.RequirePermission(auth.PermPayrollApprove, h.Perms)

	r.Route("/payroll", func(r chi.Router) {
		r.With(read).Get("/rules", h.handleListRules)
		r.With(write).Post("/rules", h.handleCreateRule)
		r.With(read).Get("/rules/{ruleID}", h.handleGetRule)
		r.With(write).Patch("/rules/{ruleID}/status", h.handleUpdateRuleStatus)

		r.With(read).Get("/templates", h.handleListTemplates)
		r.With(write).Post("/templates", h.handleCreateTemplate)
		r.With(read).Get("/templates/{templateID}", h.handleGetTemplate)
		r.With(write).Post("/templates/{templateID}/rules", h.handleAddTemplateRule)
		r.With(write).Delete("/templates/{templateID}/rules/{ruleID}", h.handleRemoveTemplateRule)
		r.With(write).Put("/templates/{templateID}/order", h.handleReorderTemplate)

		r.With(read).Get("/tax-rules", h.handleListTaxRules)
		r.With(write).Post("/tax-rules", h.handleCreateTaxRule)
		r.With(read).Post("/tax/preview", h.handlePreviewTax)

		r.With(run).Post("/runs/{runID}/deductions", h.handleRunDeductions)
		r.With(read).Get("/runs/{runID}/deductions", h.handleListRunDeductions)
		r.With(read).Get("/runs/{runID}/totals", h.handleRunTotals)
		r.With(read).Get("/runs/{runID}/tax-report", h.handleTaxReport)
		r.With(read).Get("/runs/{runID}/register.pdf", h.handleRegisterPDF)
		r.With(read).Get("/runs/{runID}/register.xlsx", h.handleRegisterXLSX)

		r.With(approve).Post("/deductions/{deductionID}/approve", h.handleApproveDeduction)
		r.With(approve).Post("/deductions/{deductionID}/reject", h.handleRejectDeduction)

		r.With(read).Get("/employees/{employeeID}/year-end", h.handleYearEnd)
	})
}

// writeError maps domain errors to the response envelope. Anything not
// recognised is logged and reported with fallbackCode.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	requestID := middleware.GetRequestID(r.Context())

	var validation *payroll.ValidationError
	if errors.As(err, &validation) {
		issues := make([]shared.ValidationIssue, 0, len(validation.Issues))
		for _, issue := range validation.Issues {
			issues = append(issues, shared.ValidationIssue{Field: issue.Field, Reason: issue.Reason})
		}
		api.FailWithDetails(w, http.StatusBadRequest, "validation_error", validation.Error(), map[string]any{"fields": issues}, requestID)
		return
	}
	var ambiguous *payroll.AmbiguousRuleError
	if errors.As(err, &ambiguous) {
		api.FailWithDetails(w, http.StatusConflict, "ambiguous_rule", err.Error(), map[string]any{"ruleIds": ambiguous.RuleIDs}, requestID)
		return
	}
	var illegal *payroll.IllegalApprovalTransitionError
	if errors.As(err, &illegal) {
		api.FailWithDetails(w, http.StatusConflict, "illegal_transition", err.Error(), map[string]any{"status": illegal.Current}, requestID)
		return
	}

	switch {
	case errors.Is(err, payroll.ErrRuleNotFound),
		errors.Is(err, payroll.ErrTemplateNotFound),
		errors.Is(err, payroll.ErrTaxRuleNotFound),
		errors.Is(err, payroll.ErrDeductionNotFound),
		errors.Is(err, payroll.ErrNoRunResults):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, payroll.ErrInvalidDefinition),
		errors.Is(err, payroll.ErrInvalidCalculationMethod),
		errors.Is(err, payroll.ErrBracketGapOrOverlap),
		errors.Is(err, payroll.ErrDuplicateTemplateOrder),
		errors.Is(err, payroll.ErrInvalidReorder),
		errors.Is(err, payroll.ErrApproverRequired):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	case errors.Is(err, payroll.ErrConcurrentUpdate):
		api.Fail(w, http.StatusConflict, "concurrent_update", err.Error(), requestID)
	case errors.Is(err, payroll.ErrLockNotObtained):
		api.Fail(w, http.StatusConflict, "locked", err.Error(), requestID)
	default:
		slog.Error("payroll request failed", "path", r.URL.Path, "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", requestID)
	}
}

func (h *Handler) audit(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

func invalidPayload(w http.ResponseWriter, r *http.Request) {
	api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	q := r.URL.Query()
	v := shared.NewValidator()
	v.Enum("status", q.Get("status"), payroll.RuleStatuses, "must be draft, active or inactive")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	rules, err := h.Service.ListRules(r.Context(), user.TenantID, payroll.RuleFilter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Type:     q.Get("type"),
	})
	if err != nil {
		writeError(w, r, err, "payroll_rules_failed")
		return
	}
	api.Success(w, rules, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload rulePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	v := shared.NewValidator()
	rule := payload.toRule(v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	created, err := h.Service.CreateRule(r.Context(), user.TenantID, rule)
	if err != nil {
		writeError(w, r, err, "payroll_rule_create_failed")
		return
	}
	h.audit(r, user, payroll.AuditRuleCreated, payroll.AuditEntityRule, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	rule, err := h.Service.GetRule(r.Context(), user.TenantID, chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, r, err, "payroll_rule_failed")
		return
	}
	api.Success(w, rule, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateRuleStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		Status string `json:"status"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	v := shared.NewValidator()
	v.Required("status", payload.Status, "is required")
	v.Enum("status", payload.Status, payroll.RuleStatuses, "must be draft, active or inactive")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	ruleID := chi.URLParam(r, "ruleID")
	before, after, err := h.Service.UpdateRuleStatus(r.Context(), user.TenantID, ruleID, payload.Status)
	if err != nil {
		writeError(w, r, err, "payroll_rule_status_failed")
		return
	}
	h.audit(r, user, payroll.AuditRuleStatusChanged, payroll.AuditEntityRule, ruleID, before, after)
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	templates, err := h.Service.ListTemplates(r.Context(), user.TenantID)
	if err != nil {
		writeError(w, r, err, "payroll_templates_failed")
		return
	}
	api.Success(w, templates, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Rules       []payroll.TemplateRule `json:"rules"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	created, err := h.Service.CreateTemplate(r.Context(), user.TenantID, payroll.DeductionTemplate{
		Name:        payload.Name,
		Description: payload.Description,
		Rules:       payload.Rules,
	})
	if err != nil {
		writeError(w, r, err, "payroll_template_create_failed")
		return
	}
	h.audit(r, user, payroll.AuditTemplateCreated, payroll.AuditEntityTemplate, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	tpl, err := h.Service.GetTemplate(r.Context(), user.TenantID, chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, r, err, "payroll_template_failed")
		return
	}
	api.Success(w, tpl, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddTemplateRule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload payroll.TemplateRule
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	v := shared.NewValidator()
	v.Required("ruleId", payload.RuleID, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	templateID := chi.URLParam(r, "templateID")
	tpl, err := h.Service.AddTemplateRule(r.Context(), user.TenantID, templateID, payload.RuleID, payload.Order)
	if err != nil {
		writeError(w, r, err, "payroll_template_update_failed")
		return
	}
	h.audit(r, user, payroll.AuditTemplateChanged, payroll.AuditEntityTemplate, templateID, nil, tpl)
	api.Success(w, tpl, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRemoveTemplateRule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	templateID := chi.URLParam(r, "templateID")
	tpl, err := h.Service.RemoveTemplateRule(r.Context(), user.TenantID, templateID, chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, r, err, "payroll_template_update_failed")
		return
	}
	h.audit(r, user, payroll.AuditTemplateChanged, payroll.AuditEntityTemplate, templateID, nil, tpl)
	api.Success(w, tpl, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReorderTemplate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		RuleIDs []string `json:"ruleIds"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	templateID := chi.URLParam(r, "templateID")
	tpl, err := h.Service.ReorderTemplate(r.Context(), user.TenantID, templateID, payload.RuleIDs)
	if err != nil {
		writeError(w, r, err, "payroll_template_update_failed")
		return
	}
	h.audit(r, user, payroll.AuditTemplateChanged, payroll.AuditEntityTemplate, templateID, nil, tpl)
	api.Success(w, tpl, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListTaxRules(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	rules, err := h.Service.ListTaxRules(r.Context(), user.TenantID)
	if err != nil {
		writeError(w, r, err, "payroll_tax_rules_failed")
		return
	}
	api.Success(w, rules, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateTaxRule(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload taxRulePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	v := shared.NewValidator()
	rule := payload.toTaxRule(v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	created, err := h.Service.CreateTaxRule(r.Context(), user.TenantID, rule)
	if err != nil {
		writeError(w, r, err, "payroll_tax_rule_create_failed")
		return
	}
	h.audit(r, user, payroll.AuditTaxRuleCreated, payroll.AuditEntityTaxRule, created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePreviewTax(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		Category string          `json:"category"`
		Income   decimal.Decimal `json:"income"`
		Date     string          `json:"date"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	v := shared.NewValidator()
	v.Required("category", payload.Category, "is required")
	at := time.Now().UTC()
	if payload.Date != "" {
		at, _ = v.Date("date", payload.Date)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	result, err := h.Service.PreviewTax(r.Context(), user.TenantID, payload.Category, payload.Income, at)
	if err != nil {
		writeError(w, r, err, "payroll_tax_preview_failed")
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunDeductions(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		Employees []employeePayload `json:"employees"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w, r)
		return
	}
	v := shared.NewValidator()
	if len(payload.Employees) == 0 {
		v.Add("employees", "must not be empty")
	}
	employees := make([]payroll.EmployeeInput, 0, len(payload.Employees))
	for i, emp := range payload.Employees {
		employees = append(employees, emp.toInput(v, "employees["+strconv.Itoa(i)+"]"))
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	result, err := h.Service.RunDeductions(r.Context(), user.TenantID, chi.URLParam(r, "runID"), employees)
	if err != nil {
		writeError(w, r, err, "payroll_run_failed")
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRunDeductions(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 200, 1000)
	q := r.URL.Query()
	deductions, err := h.Service.ListRunDeductions(r.Context(), user.TenantID, chi.URLParam(r, "runID"), payroll.DeductionFilter{
		EmployeeID: q.Get("employeeId"),
		Status:     q.Get("status"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		writeError(w, r, err, "payroll_deductions_failed")
		return
	}
	api.Success(w, deductions, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunTotals(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	results, err := h.Service.RunTotals(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, err, "payroll_totals_failed")
		return
	}
	api.Success(w, results, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTaxReport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	report, err := h.Service.TaxReport(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, err, "payroll_tax_report_failed")
		return
	}
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRegisterPDF(w http.ResponseWriter, r *http.Request) {
	h.writeRegister(w, r, "application/pdf", "pdf", payroll.Register.WritePDF)
}

func (h *Handler) handleRegisterXLSX(w http.ResponseWriter, r *http.Request) {
	h.writeRegister(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", payroll.Register.WriteXLSX)
}

// writeRegister renders into memory first so a failure can still be
// reported as JSON.
func (h *Handler) writeRegister(w http.ResponseWriter, r *http.Request, contentType, ext string, render func(payroll.Register, io.Writer) error) {
	user, _ := middleware.GetUser(r.Context())
	runID := chi.URLParam(r, "runID")
	register, err := h.Service.Register(r.Context(), user.TenantID, runID)
	if err != nil {
		writeError(w, r, err, "payroll_register_failed")
		return
	}
	var buf bytes.Buffer
	if err := render(register, &buf); err != nil {
		writeError(w, r, err, "payroll_register_failed")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=deduction-register-"+runID+"."+ext)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("register write failed", "runId", runID, "err", err)
	}
}

func (h *Handler) handleApproveDeduction(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	deductionID := chi.URLParam(r, "deductionID")
	decision, err := h.Service.ApproveDeduction(r.Context(), user.TenantID, deductionID, user.UserID)
	if err != nil {
		writeError(w, r, err, "payroll_approve_failed")
		return
	}
	h.audit(r, user, payroll.AuditDeductionApproved, payroll.AuditEntityDeduction, deductionID, decision.Before, decision.After)
	api.Success(w, decision.After, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRejectDeduction(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &payload); err != nil {
			invalidPayload(w, r)
			return
		}
	}
	deductionID := chi.URLParam(r, "deductionID")
	decision, err := h.Service.RejectDeduction(r.Context(), user.TenantID, deductionID, user.UserID, payload.Notes)
	if err != nil {
		writeError(w, r, err, "payroll_reject_failed")
		return
	}
	h.audit(r, user, payroll.AuditDeductionRejected, payroll.AuditEntityDeduction, deductionID, decision.Before, decision.After)
	api.Success(w, decision.After, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleYearEnd(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	year := time.Now().UTC().Year() - 1
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 9999 {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "year", Reason: "must be a four digit year"}})
			return
		}
		year = parsed
	}
	adj, err := h.Service.YearEndAdjustment(r.Context(), user.TenantID, chi.URLParam(r, "employeeID"), year)
	if err != nil {
		writeError(w, r, err, "payroll_year_end_failed")
		return
	}
	api.Success(w, adj, middleware.GetRequestID(r.Context()))
}
