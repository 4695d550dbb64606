package disbursement

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"
	customError "github.com/segyhp/loan-origination/pkg/errors"
	"github.com/segyhp/loan-origination/pkg/utils"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the reconciliation tolerance in currency units
var DefaultTolerance = decimal.RequireFromString("0.01")

// Allocator splits an approved amount across disbursement lines. Amount is the
// single source of truth: every percentage is recomputed from it.
type Allocator struct {
	tolerance decimal.Decimal
}

func NewAllocator(tolerance decimal.Decimal) *Allocator {
	if tolerance.IsNegative() {
		tolerance = DefaultTolerance
	}
	return &Allocator{tolerance: tolerance}
}

// Tolerance returns the configured reconciliation tolerance
func (a *Allocator) Tolerance() decimal.Decimal {
	return a.tolerance
}

// NewAllocation starts an empty working set for an application
func NewAllocation(app *domain.Application) *domain.DisbursementAllocation {
	return &domain.DisbursementAllocation{
		ApplicationID:  app.ID,
		ApprovedAmount: app.ApprovedAmount,
		Currency:       app.Currency,
		Lines:          []*domain.DisbursementLine{},
	}
}

// AddLine appends a line. It takes the full unallocated remainder when there is
// one, otherwise zero.
func (a *Allocator) AddLine(alloc *domain.DisbursementAllocation, accountRef string, isExternal bool) (*domain.DisbursementLine, error) {
	accountRef = strings.TrimSpace(accountRef)
	if accountRef == "" {
		return nil, customError.WrapValidation("account_ref is required")
	}
	for _, l := range alloc.Lines {
		if l.AccountRef == accountRef {
			return nil, customError.WrapValidation(fmt.Sprintf("account %s already has a disbursement line", accountRef))
		}
	}

	amount := decimal.Zero
	if remaining := a.Remaining(alloc); remaining.IsPositive() {
		amount = remaining
	}

	line := &domain.DisbursementLine{
		ID:         uuid.New(),
		AccountRef: accountRef,
		IsExternal: isExternal,
	}
	a.setLineAmount(alloc, line, amount)
	alloc.Lines = append(alloc.Lines, line)

	return line, nil
}

// SetAmount clamps amount to [0, approved] and recomputes the line percentage
func (a *Allocator) SetAmount(alloc *domain.DisbursementAllocation, lineID uuid.UUID, amount decimal.Decimal) (*domain.DisbursementLine, error) {
	line := findLine(alloc, lineID)
	if line == nil {
		return nil, customError.WrapNotFound("disbursement line", lineID.String())
	}

	amount = utils.Clamp(utils.RoundCurrency(amount), decimal.Zero, alloc.ApprovedAmount)
	a.setLineAmount(alloc, line, amount)

	return line, nil
}

// SetPercentage converts a percentage to an amount and delegates to SetAmount
func (a *Allocator) SetPercentage(alloc *domain.DisbursementAllocation, lineID uuid.UUID, pct decimal.Decimal) (*domain.DisbursementLine, error) {
	return a.SetAmount(alloc, lineID, utils.AmountFromPercentage(pct, alloc.ApprovedAmount))
}

// DistributeEqually gives every line approved/n rounded down to the cent; the
// last line absorbs the remainder so the sum is exact.
func (a *Allocator) DistributeEqually(alloc *domain.DisbursementAllocation) error {
	n := len(alloc.Lines)
	if n == 0 {
		return customError.WrapAllocationMismatch("allocation has no lines to distribute across")
	}

	share := alloc.ApprovedAmount.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	allocated := decimal.Zero
	for i, line := range alloc.Lines {
		amount := share
		if i == n-1 {
			amount = alloc.ApprovedAmount.Sub(allocated)
		}
		a.setLineAmount(alloc, line, amount)
		allocated = allocated.Add(amount)
	}

	return nil
}

// RemoveLine drops a line from the working set
func (a *Allocator) RemoveLine(alloc *domain.DisbursementAllocation, lineID uuid.UUID) error {
	for i, l := range alloc.Lines {
		if l.ID == lineID {
			alloc.Lines = append(alloc.Lines[:i], alloc.Lines[i+1:]...)
			return nil
		}
	}
	return customError.WrapNotFound("disbursement line", lineID.String())
}

// Validate fails with AllocationMismatch unless the lines reconcile to the
// approved amount within tolerance, there is at least one line and every
// account ref is distinct.
func (a *Allocator) Validate(alloc *domain.DisbursementAllocation) error {
	if alloc == nil || len(alloc.Lines) == 0 {
		return customError.WrapAllocationMismatch("allocation has no lines")
	}

	seen := make(map[string]struct{}, len(alloc.Lines))
	for _, l := range alloc.Lines {
		if _, dup := seen[l.AccountRef]; dup {
			return customError.WrapAllocationMismatch(fmt.Sprintf("account %s appears more than once", l.AccountRef))
		}
		seen[l.AccountRef] = struct{}{}
	}

	sum := Sum(alloc)
	if delta := sum.Sub(alloc.ApprovedAmount).Abs(); delta.GreaterThan(a.tolerance) {
		return customError.WrapAllocationMismatch(fmt.Sprintf(
			"allocated %s does not match approved amount %s (delta %s, tolerance %s)",
			sum.StringFixed(2), alloc.ApprovedAmount.StringFixed(2), delta.String(), a.tolerance.String(),
		))
	}

	return nil
}

// Remaining returns approved minus allocated
func (a *Allocator) Remaining(alloc *domain.DisbursementAllocation) decimal.Decimal {
	return alloc.ApprovedAmount.Sub(Sum(alloc))
}

// Sum adds up every line amount
func Sum(alloc *domain.DisbursementAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, l := range alloc.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Snapshot renders the allocation for the audit record
func Snapshot(alloc *domain.DisbursementAllocation) map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(alloc.Lines))
	for _, l := range alloc.Lines {
		lines = append(lines, map[string]interface{}{
			"line_id":     l.ID.String(),
			"account_ref": l.AccountRef,
			"amount":      l.Amount.StringFixed(2),
			"percentage":  l.Percentage.String(),
			"is_external": l.IsExternal,
		})
	}
	return map[string]interface{}{
		"approved_amount": alloc.ApprovedAmount.StringFixed(2),
		"currency":        alloc.Currency,
		"lines":           lines,
	}
}

func (a *Allocator) setLineAmount(alloc *domain.DisbursementAllocation, line *domain.DisbursementLine, amount decimal.Decimal) {
	line.Amount = amount
	line.Percentage = utils.PercentageOf(amount, alloc.ApprovedAmount).Round(4)
}

func findLine(alloc *domain.DisbursementAllocation, lineID uuid.UUID) *domain.DisbursementLine {
	for _, l := range alloc.Lines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}
