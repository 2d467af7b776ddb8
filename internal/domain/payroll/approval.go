package payroll

import (
	"strings"
	"time"
)

// Approve moves a pending deduction to approved. The input is not modified.
func Approve(d PayrollDeduction, approverID string, at time.Time) (PayrollDeduction, error) {
	return transition(d, "approve", DeductionStatusApproved, approverID, "", at)
}

// Reject moves a pending deduction to rejected and records the reason.
func Reject(d PayrollDeduction, approverID, notes string, at time.Time) (PayrollDeduction, error) {
	return transition(d, "reject", DeductionStatusRejected, approverID, notes, at)
}

func transition(d PayrollDeduction, action, next, approverID, notes string, at time.Time) (PayrollDeduction, error) {
	if d.Status != DeductionStatusPending {
		return d, &IllegalApprovalTransitionError{DeductionID: d.ID, Current: d.Status, Action: action}
	}
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return d, ErrApproverRequired
	}
	stamped := at.UTC()
	d.Status = next
	d.ApprovedBy = approverID
	d.ApprovedAt = &stamped
	if notes = strings.TrimSpace(notes); notes != "" {
		d.Notes = notes
	}
	d.Version++
	return d, nil
}
