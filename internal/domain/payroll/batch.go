package payroll

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

type EmployeeFailure struct {
	EmployeeID string `json:"employeeId"`
	Reason     string `json:"reason"`
	Err        error  `json:"-"`
}

// BatchResult keeps successes and failures apart; a failed employee never
// appears in Results.
type BatchResult struct {
	RunID    string            `json:"runId"`
	Results  []EmployeeResult  `json:"results"`
	Failures []EmployeeFailure `json:"failures"`
}

// ExistingLookup returns the deductions already stored for an employee in the
// run, keyed by rule id.
type ExistingLookup func(employeeID string) map[string]PayrollDeduction

// EvaluateBatch evaluates employees on at most workers goroutines. Results
// keep the input order. The only error returned is ctx's.
func (e *Engine) EvaluateBatch(ctx context.Context, defs *Definitions, runID string, employees []EmployeeInput, existing ExistingLookup, workers int) (BatchResult, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	defs.index()

	type outcome struct {
		result EmployeeResult
		err    error
	}
	outcomes := make([]outcome, len(employees))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, emp := range employees {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var prior map[string]PayrollDeduction
			if existing != nil {
				prior = existing(emp.EmployeeID)
			}
			res, err := e.EvaluateEmployee(defs, runID, emp, prior)
			outcomes[i] = outcome{result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	batch := BatchResult{RunID: runID, Results: []EmployeeResult{}, Failures: []EmployeeFailure{}}
	for i, o := range outcomes {
		if o.err != nil {
			e.logger().Warn("payroll employee evaluation failed",
				"runId", runID,
				"employeeId", employees[i].EmployeeID,
				"err", o.err,
			)
			batch.Failures = append(batch.Failures, EmployeeFailure{
				EmployeeID: employees[i].EmployeeID,
				Reason:     o.err.Error(),
				Err:        o.err,
			})
			continue
		}
		batch.Results = append(batch.Results, o.result)
	}
	return batch, nil
}
