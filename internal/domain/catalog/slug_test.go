package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Saree X", want: "saree-x"},
		{in: "  Banarasi   Silk Saree ", want: "banarasi-silk-saree"},
		{in: "Kurta_Set--Blue!!", want: "kurta-set-blue"},
		{in: "Lehenga (2024) Edition", want: "lehenga-2024-edition"},
		{in: "Anarkali – Rosé", want: "anarkali-ros"},
		{in: "---", want: ""},
		{in: "", want: ""},
		{in: "ABC123", want: "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugify_Deterministic(t *testing.T) {
	assert.Equal(t, Slugify("Saree X"), Slugify("saree   x"))
}
