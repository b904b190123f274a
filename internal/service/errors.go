package service

import "errors"

// Ошибки бизнес-логики. Обработчики сопоставляют их с HTTP-статусами.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")

	ErrNoSpinsRemaining = errors.New("no spins remaining")
	ErrMisconfiguredBox = errors.New("blindbox is misconfigured")
	ErrSpinPersistence  = errors.New("failed to record spin")

	ErrBlindBoxNotFound = errors.New("blindbox not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrUserNotFound     = errors.New("user not found")

	ErrImmutableItem = errors.New("won items cannot be changed")
	ErrOutOfStock    = errors.New("product is out of stock")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrInvalidInput  = errors.New("invalid input")

	ErrInvalidSignature  = errors.New("invalid payment signature")
	ErrAmountMismatch    = errors.New("payment amount does not match order")
	ErrPaymentDisabled   = errors.New("payment gateway is not configured")
	ErrOrderClosed       = errors.New("order can no longer be changed")
	ErrSlugExists        = errors.New("slug already exists")
	ErrInUse             = errors.New("record is in use")
	ErrInvalidBlindBox   = errors.New("invalid blindbox configuration")
	ErrOrderNumberFailed = errors.New("could not allocate order number")
)
