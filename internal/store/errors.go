package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOverReturn         = errors.New("return quantity exceeds sold quantity")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InsufficientStockError names the first offending product so callers can
// surface it without a second lookup. errors.Is matches ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// OverReturnError reports a return line exceeding the remaining returnable
// quantity on its invoice. errors.Is matches ErrOverReturn.
type OverReturnError struct {
	ProductID   string
	ProductName string
	Sold        int
	Returned    int
	Requested   int
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("over-return for %s: sold %d, already returned %d, requested %d", e.ProductName, e.Sold, e.Returned, e.Requested)
}

func (e *OverReturnError) Is(target error) bool {
	return target == ErrOverReturn
}
