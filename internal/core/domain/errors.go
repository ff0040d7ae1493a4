package domain

import "errors"

// Error kinds. Every error returned by the service layer for a client
// mistake or a business rule unwraps to exactly one of these.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

// Error carries a client-facing message and unwraps to its kind.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func NewValidationError(msg string) error        { return &Error{kind: ErrValidation, msg: msg} }
func NewNotFoundError(msg string) error          { return &Error{kind: ErrNotFound, msg: msg} }
func NewInsufficientStockError(msg string) error { return &Error{kind: ErrInsufficientStock, msg: msg} }
func NewConflictError(msg string) error          { return &Error{kind: ErrConflict, msg: msg} }

// Client-facing messages.
const (
	MsgMissingFields     = "missing required fields"
	MsgQuantityPositive  = "quantity must be positive"
	MsgQuantityNegative  = "quantity cannot be negative"
	MsgMinStockNegative  = "min_stock cannot be negative"
	MsgPriceNegative     = "price cannot be negative"
	MsgPriceTooLarge     = "price cannot exceed 99999999.99"
	MsgSourceNotFound    = "source inventory not found"
	MsgInsufficientStock = "insufficient stock in source store"
	MsgProductNotFound   = "product not found"
	MsgInventoryExists   = "inventory already exists for this product in the store"
	MsgSKUExists         = "sku already exists"
	MsgProductHasStock   = "cannot delete product with existing inventory"
	MsgDuplicateRequest  = "duplicate request"
)

// ErrDuplicateRequest is returned when an idempotency key has already been used.
var ErrDuplicateRequest = NewConflictError(MsgDuplicateRequest)
