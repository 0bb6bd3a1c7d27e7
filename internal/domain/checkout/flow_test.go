package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/apperr"
)

func savedAddresses() []address.Address {
	return []address.Address{
		{ID: "a1", UserID: "u1", FullName: "Asha", Phone: "1", Line1: "x", City: "c", State: "s", PostalCode: "p", Country: "IN"},
		{ID: "a2", UserID: "u1", FullName: "Ravi", Phone: "2", Line1: "y", City: "c", State: "s", PostalCode: "p", Country: "IN", IsDefault: true},
	}
}

func newAddress() *address.Address {
	return &address.Address{FullName: " Meera ", Phone: "3", Line1: "z", City: "c", State: "s", PostalCode: "p", Country: "IN"}
}

func TestNewFlow_InitialState(t *testing.T) {
	assert.Equal(t, StateNoSavedOptions, NewFlow(nil).State())

	f := NewFlow(savedAddresses())
	assert.Equal(t, StateSelectingSaved, f.State())

	got, err := f.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.ID, "default is preselected")
}

func TestFlow_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		saved     []address.Address
		steps     func(f *Flow) error
		wantState State
		wantErr   error
	}{
		{
			name:      "select saved",
			saved:     savedAddresses(),
			steps:     func(f *Flow) error { return f.SelectSaved("a1") },
			wantState: StateSelectingSaved,
		},
		{
			name:      "select unknown",
			saved:     savedAddresses(),
			steps:     func(f *Flow) error { return f.SelectSaved("zz") },
			wantState: StateSelectingSaved,
			wantErr:   ErrUnknownAddress,
		},
		{
			name:      "select without saved",
			steps:     func(f *Flow) error { return f.SelectSaved("a1") },
			wantState: StateNoSavedOptions,
			wantErr:   ErrIllegalStep,
		},
		{
			name:      "enter new from no saved",
			steps:     func(f *Flow) error { return f.EnterNew() },
			wantState: StateEnteringNew,
		},
		{
			name:      "enter new from saved",
			saved:     savedAddresses(),
			steps:     func(f *Flow) error { return f.EnterNew() },
			wantState: StateEnteringNew,
		},
		{
			name:      "enter new twice",
			saved:     savedAddresses(),
			steps:     func(f *Flow) error { _ = f.EnterNew(); return f.EnterNew() },
			wantState: StateEnteringNew,
			wantErr:   ErrIllegalStep,
		},
		{
			name:      "back to saved",
			saved:     savedAddresses(),
			steps:     func(f *Flow) error { _ = f.EnterNew(); return f.BackToSaved() },
			wantState: StateSelectingSaved,
		},
		{
			name:      "back without saved",
			steps:     func(f *Flow) error { _ = f.EnterNew(); return f.BackToSaved() },
			wantState: StateEnteringNew,
			wantErr:   ErrIllegalStep,
		},
		{
			name:      "back from selecting",
			saved:     savedAddresses(),
			steps:     func(f *Flow) error { return f.BackToSaved() },
			wantState: StateSelectingSaved,
			wantErr:   ErrIllegalStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFlow(tt.saved)
			err := tt.steps(f)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantState, f.State())
		})
	}
}

func TestFlow_ResolveNew(t *testing.T) {
	f := NewFlow(savedAddresses())
	require.NoError(t, f.EnterNew())

	_, err := f.Resolve(nil)
	require.ErrorIs(t, err, ErrNothingSelected)

	incomplete := newAddress()
	incomplete.City = ""
	_, err = f.Resolve(incomplete)
	var fe *apperr.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "city", fe.Field)

	got, err := f.Resolve(newAddress())
	require.NoError(t, err)
	assert.Equal(t, "Meera", got.FullName)
	assert.Empty(t, got.ID)
}

func TestFlow_NothingSelected(t *testing.T) {
	saved := savedAddresses()
	saved[1].IsDefault = false

	_, err := NewFlow(saved).Resolve(nil)
	require.ErrorIs(t, err, ErrNothingSelected)

	_, err = NewFlow(nil).Resolve(newAddress())
	require.ErrorIs(t, err, ErrNothingSelected)
}

func TestResolveBoth(t *testing.T) {
	saved := savedAddresses()

	t.Run("same as shipping", func(t *testing.T) {
		got, err := ResolveBoth(saved, Selection{SavedID: "a1"}, Selection{}, true)
		require.NoError(t, err)
		assert.Equal(t, "a1", got.Shipping.ID)
		assert.Equal(t, got.Shipping, got.Billing)
	})

	t.Run("saved shipping new billing", func(t *testing.T) {
		got, err := ResolveBoth(saved, Selection{SavedID: "a2"}, Selection{New: newAddress()}, false)
		require.NoError(t, err)
		assert.Equal(t, "Ravi", got.Shipping.FullName)
		assert.Equal(t, "Meera", got.Billing.FullName)
	})

	t.Run("both set", func(t *testing.T) {
		_, err := ResolveBoth(saved, Selection{SavedID: "a1", New: newAddress()}, Selection{}, true)
		var fe *apperr.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "shipping", fe.Field)
	})

	t.Run("billing missing", func(t *testing.T) {
		_, err := ResolveBoth(saved, Selection{SavedID: "a1"}, Selection{}, false)
		var fe *apperr.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "billing", fe.Field)
	})

	t.Run("saved id without address book", func(t *testing.T) {
		_, err := ResolveBoth(nil, Selection{SavedID: "a1"}, Selection{}, true)
		require.ErrorIs(t, err, ErrUnknownAddress)
	})
}
