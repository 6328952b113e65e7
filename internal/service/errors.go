package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotLoaded  = errors.New("inventory not loaded yet")
	ErrNoIdentity = errors.New("no signed-in identity")
	ErrClosed     = errors.New("inventory coordinator closed")
)

// SaleStep names a durable step of a sale.
type SaleStep string

const (
	// StepSaleAndStock writes the sale record and the stock move together.
	StepSaleAndStock SaleStep = "sale_and_stock"
	StepEarnings     SaleStep = "earnings"
)

// SaleError reports a sale that failed at Step after the Completed steps
// were already durable. Completed steps are not rolled back.
type SaleError struct {
	ProductID string
	Completed []SaleStep
	Step      SaleStep
	Err       error
}

func (e *SaleError) Error() string {
	done := "none"
	if len(e.Completed) > 0 {
		steps := make([]string, len(e.Completed))
		for i, s := range e.Completed {
			steps[i] = string(s)
		}
		done = strings.Join(steps, ",")
	}
	return fmt.Sprintf("sale of %s failed at %s (completed: %s): %v", e.ProductID, e.Step, done, e.Err)
}

func (e *SaleError) Unwrap() error {
	return e.Err
}

// Partial reports whether some of the sale is durable.
func (e *SaleError) Partial() bool {
	return len(e.Completed) > 0
}
