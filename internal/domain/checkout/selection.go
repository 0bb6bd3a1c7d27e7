package checkout

import (
	"github.com/go-faster/errors"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// Selection is the request-side choice of an address: exactly one of
// SavedID or New is set.
type Selection struct {
	SavedID string
	New     *address.Address
}

// Addresses is the outcome of resolving shipping and billing selections.
type Addresses struct {
	Shipping address.Address
	Billing  address.Address
}

// Resolve drives a Flow for sel over the saved addresses.
func Resolve(saved []address.Address, sel Selection, field string) (address.Address, error) {
	if (sel.SavedID == "") == (sel.New == nil) {
		return address.Address{}, apperr.Invalid(field, "exactly one of saved_id or new is required")
	}

	f := NewFlow(saved)
	if sel.New != nil {
		if err := f.EnterNew(); err != nil {
			return address.Address{}, err
		}
		return f.Resolve(sel.New)
	}
	if err := f.SelectSaved(sel.SavedID); err != nil {
		if errors.Is(err, ErrIllegalStep) {
			return address.Address{}, ErrUnknownAddress
		}
		return address.Address{}, err
	}
	return f.Resolve(nil)
}

// ResolveBoth resolves the shipping selection and, unless sameAsShipping is
// set, the billing one.
func ResolveBoth(saved []address.Address, shipping, billing Selection, sameAsShipping bool) (Addresses, error) {
	ship, err := Resolve(saved, shipping, "shipping")
	if err != nil {
		return Addresses{}, err
	}
	if sameAsShipping {
		return Addresses{Shipping: ship, Billing: ship}, nil
	}
	bill, err := Resolve(saved, billing, "billing")
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Shipping: ship, Billing: bill}, nil
}
