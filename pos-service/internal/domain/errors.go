package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProduct     = errors.New("product is not in the catalog snapshot")
	ErrProductNotFound    = errors.New("product not found")
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrInsufficientTender = errors.New("tendered amount is below the order total")
	ErrInvalidCoupon      = errors.New("invalid coupon")
	ErrInvalidPayment     = errors.New("invalid payment info")
	ErrFetch              = errors.New("collaborator unreachable")
	ErrSessionNotFound    = errors.New("pos session not found")
	ErrSuperseded         = errors.New("pos session open superseded by a newer request")
	ErrTenantMismatch     = errors.New("pos session belongs to another tenant")
	ErrMissingTenant      = errors.New("tenant slug and operator id are required")
)

type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("product %d is not active in the catalog snapshot", e.ProductID)
}

func (e *UnknownProductError) Is(target error) bool {
	return target == ErrUnknownProduct
}

// FetchError reports a collaborator that could not be reached. The operator
// retries by hand; nothing in the core retries on its own.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
