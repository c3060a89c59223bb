package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+91 98765 43210": "919876543210",
		"919876543210":    "919876543210",
		"(91) 98765-43210": "919876543210",
		"":                "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePhone(raw), "input %q", raw)
	}
}

func TestParseBirthTime(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"06:30", "06:30", true},
		{"6:30", "06:30", true},
		{"23:59", "23:59", true},
		{"6:30 am", "06:30", true},
		{"6:30am", "06:30", true},
		{"6:30 pm", "18:30", true},
		{"12:00 am", "00:00", true},
		{"12:00 pm", "12:00", true},
		{"12 pm", "12:00", true},
		{"7 am", "07:00", true},
		{"24:00", "", false},
		{"13:00 pm", "", false},
		{"6:61", "", false},
		{"morning", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseBirthTime(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestMenuEscape(t *testing.T) {
	assert.True(t, isMenuEscape("0", ""))
	assert.True(t, isMenuEscape(" 0 ", ""))
	assert.True(t, isMenuEscape("", PayloadMainMenu))
	assert.False(t, isMenuEscape("00", ""))
	assert.False(t, isMenuEscape("menu", ""))
}

func TestHistoryCommand(t *testing.T) {
	assert.True(t, isHistoryCommand("history"))
	assert.True(t, isHistoryCommand(" History "))
	assert.True(t, isHistoryCommand("చరిత్ర"))
	assert.False(t, isHistoryCommand("hist"))
}
