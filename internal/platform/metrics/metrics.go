package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	totalDurationMs uint64

	employeesEvaluated uint64
	employeesFailed    uint64
	deductionsCreated  uint64
	approvals          uint64
	rejections         uint64
	lockContention     uint64
	cacheHits          uint64
	cacheMisses        uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordRun counts the outcome of one deduction run.
func (c *Collector) RecordRun(evaluated, failed, created int) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.employeesEvaluated, uint64(evaluated))
	atomic.AddUint64(&c.employeesFailed, uint64(failed))
	atomic.AddUint64(&c.deductionsCreated, uint64(created))
}

func (c *Collector) RecordDecision(approved bool) {
	if c == nil {
		return
	}
	if approved {
		atomic.AddUint64(&c.approvals, 1)
		return
	}
	atomic.AddUint64(&c.rejections, 1)
}

func (c *Collector) RecordLockContention() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.lockContention, 1)
}

func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		atomic.AddUint64(&c.cacheHits, 1)
		return
	}
	atomic.AddUint64(&c.cacheMisses, 1)
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":           total,
		"errorsTotal":             errs,
		"avgDurationMs":           avg,
		"totalDurationMs":         totalMs,
		"employeesEvaluatedTotal": atomic.LoadUint64(&c.employeesEvaluated),
		"employeesFailedTotal":    atomic.LoadUint64(&c.employeesFailed),
		"deductionsCreatedTotal":  atomic.LoadUint64(&c.deductionsCreated),
		"approvalsTotal":          atomic.LoadUint64(&c.approvals),
		"rejectionsTotal":         atomic.LoadUint64(&c.rejections),
		"lockContentionTotal":     atomic.LoadUint64(&c.lockContention),
		"definitionsCacheHits":    atomic.LoadUint64(&c.cacheHits),
		"definitionsCacheMisses":  atomic.LoadUint64(&c.cacheMisses),
	}
}
