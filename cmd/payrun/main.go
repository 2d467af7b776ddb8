// Command payrun evaluates a batch of employees against a definitions file
// and prints the run as JSON. Nothing is persisted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"gopkg.in/yaml.v3"

	"hrpay/internal/domain/payroll"
)

type definitionsFile struct {
	Rules     []payroll.DeductionRule     `yaml:"rules"`
	Templates []payroll.DeductionTemplate `yaml:"templates"`
	TaxRules  []payroll.TaxRule           `yaml:"tax_rules"`
}

type batchFile struct {
	RunID     string                  `yaml:"run_id"`
	Employees []payroll.EmployeeInput `yaml:"employees"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "payrun: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("payrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	definitionsPath := fs.String("definitions", "", "YAML file with rules, templates and tax_rules")
	employeesPath := fs.String("employees", "", "YAML file with run_id and employees")
	runID := fs.String("run-id", "", "overrides run_id from the employees file")
	rounding := fs.String("rounding", string(payroll.RoundHalfUp), "half_up or bankers")
	workers := fs.Int("workers", payroll.DefaultWorkers, "concurrent employee evaluations")
	verbose := fs.Bool("v", false, "log evaluation warnings to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *definitionsPath == "" || *employeesPath == "" {
		fs.Usage()
		return errors.New("-definitions and -employees are required")
	}

	mode, err := payroll.ParseRounding(*rounding)
	if err != nil {
		return err
	}

	var defsFile definitionsFile
	if err := readYAML(*definitionsPath, &defsFile); err != nil {
		return err
	}
	if err := validateDefinitions(defsFile); err != nil {
		return err
	}

	var batch batchFile
	if err := readYAML(*employeesPath, &batch); err != nil {
		return err
	}
	if *runID != "" {
		batch.RunID = *runID
	}
	if batch.RunID == "" {
		return errors.New("run id is required: set run_id or pass -run-id")
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	result, err := evaluate(ctx, payroll.NewEngine(mode, logger), defsFile, batch, *workers)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readYAML(path string, dest any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func validateDefinitions(file definitionsFile) error {
	for _, rule := range file.Rules {
		if err := payroll.ValidateRule(rule); err != nil {
			return fmt.Errorf("rule %q: %w", rule.ID, err)
		}
	}
	for _, tpl := range file.Templates {
		if err := payroll.ValidateTemplate(tpl); err != nil {
			return fmt.Errorf("template %q: %w", tpl.ID, err)
		}
	}
	for _, rule := range file.TaxRules {
		if err := payroll.ValidateTaxRule(rule); err != nil {
			return fmt.Errorf("tax rule %q: %w", rule.ID, err)
		}
	}
	return nil
}

// evaluate mirrors a server run without storage: invalid employees are
// reported as failures next to the engine's own.
func evaluate(ctx context.Context, engine *payroll.Engine, file definitionsFile, batch batchFile, workers int) (payroll.BatchResult, error) {
	defs := payroll.NewDefinitions(file.Rules, file.Templates, file.TaxRules)

	var failures []payroll.EmployeeFailure
	valid := make([]payroll.EmployeeInput, 0, len(batch.Employees))
	for _, emp := range batch.Employees {
		if err := payroll.ValidateEmployee(emp); err != nil {
			failures = append(failures, payroll.EmployeeFailure{EmployeeID: emp.EmployeeID, Reason: err.Error(), Err: err})
			continue
		}
		valid = append(valid, emp)
	}

	result, err := engine.EvaluateBatch(ctx, defs, batch.RunID, valid, nil, workers)
	if err != nil {
		return payroll.BatchResult{}, err
	}
	result.Failures = append(failures, result.Failures...)
	return result, nil
}
