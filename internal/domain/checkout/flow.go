// Package checkout models address selection during checkout as a small state
// machine: a customer either picks one of their saved addresses or enters a
// new one.
package checkout

import (
	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

// State is a step of the address selection flow.
type State string

const (
	StateNoSavedOptions State = "no-saved-options"
	StateSelectingSaved State = "selecting-saved"
	StateEnteringNew    State = "entering-new"
)

var (
	// ErrIllegalStep is returned for a transition the current state does not allow.
	ErrIllegalStep = apperr.Validation("illegal checkout step")
	// ErrUnknownAddress is returned when selecting an address that is not saved.
	ErrUnknownAddress = apperr.Validation("address is not one of the saved addresses")
	// ErrNothingSelected is returned when resolving before an address was chosen.
	ErrNothingSelected = apperr.Validation("no address selected")
)

// Flow tracks one address selection. The zero value is not usable; call
// NewFlow.
type Flow struct {
	saved    []address.Address
	state    State
	selected int
}

// NewFlow starts a flow over the user's saved addresses. With saved
// addresses the flow starts in selecting-saved with the default preselected.
func NewFlow(saved []address.Address) *Flow {
	f := &Flow{saved: saved, selected: -1}
	if len(saved) == 0 {
		f.state = StateNoSavedOptions
		return f
	}
	f.state = StateSelectingSaved
	for i, a := range saved {
		if a.IsDefault {
			f.selected = i
			break
		}
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State { return f.state }

// SelectSaved picks a saved address by id.
func (f *Flow) SelectSaved(id string) error {
	if f.state != StateSelectingSaved {
		return ErrIllegalStep
	}
	for i, a := range f.saved {
		if a.ID == id {
			f.selected = i
			return nil
		}
	}
	return ErrUnknownAddress
}

// EnterNew switches to entering a new address.
func (f *Flow) EnterNew() error {
	switch f.state {
	case StateSelectingSaved, StateNoSavedOptions:
		f.state = StateEnteringNew
		return nil
	}
	return ErrIllegalStep
}

// BackToSaved returns from entering a new address to the saved list. It is
// only possible when saved addresses exist.
func (f *Flow) BackToSaved() error {
	if f.state != StateEnteringNew || len(f.saved) == 0 {
		return ErrIllegalStep
	}
	f.state = StateSelectingSaved
	return nil
}

// Resolve returns the chosen address. In entering-new the given address is
// validated and returned detached from the address book.
func (f *Flow) Resolve(newAddr *address.Address) (address.Address, error) {
	switch f.state {
	case StateSelectingSaved:
		if f.selected < 0 {
			return address.Address{}, ErrNothingSelected
		}
		return f.saved[f.selected], nil
	case StateEnteringNew:
		if newAddr == nil {
			return address.Address{}, ErrNothingSelected
		}
		a := *newAddr
		a.Normalize()
		if err := a.Validate(); err != nil {
			return address.Address{}, err
		}
		a.ID = ""
		a.UserID = ""
		a.IsDefault = false
		return a, nil
	default:
		return address.Address{}, ErrNothingSelected
	}
}
