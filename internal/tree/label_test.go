package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Sweden's Internet!!", "swedens_internet"},
		{"Sports", "sports"},
		{"sports!", "sports"},
		{"  Machine   Learning  ", "machine_learning"},
		{"Café Olé", "cafe_ole"},
		{"C++ / Go", "c_go"},
		{"2024 Olympics", "2024_olympics"},
		{"already_normal", "already_normal"},
		{"___", ""},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"Sweden's Internet!!", "Ünïcödé  Tëxt", "a--b__c", "Hello, World"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestValidLabel(t *testing.T) {
	assert.True(t, ValidLabel("Sports"))
	assert.False(t, ValidLabel("?!"))
	assert.False(t, ValidLabel(""))
}
