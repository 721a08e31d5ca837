package services

import "errors"

var (
	// ErrDiscountInvalidInput signals structurally invalid discount parameters.
	ErrDiscountInvalidInput = errors.New("discount service: invalid input")
	// ErrDiscountNotFound indicates no discount exists for the provided code or id within the shop.
	ErrDiscountNotFound = errors.New("discount service: discount not found")
	// ErrDiscountCodeExists indicates the shop already owns a discount with the same code.
	ErrDiscountCodeExists = errors.New("discount service: code already exists")
	// ErrDiscountNotEligible indicates the discount exists but failed an eligibility rule.
	ErrDiscountNotEligible = errors.New("discount service: discount not eligible")
	// ErrDiscountUnavailable indicates discount dependencies are currently unavailable.
	ErrDiscountUnavailable = errors.New("discount service: unavailable")
)
