package hotkey

import "testing"

func TestParseCombo(t *testing.T) {
	cases := []struct {
		spec string
		want Combo
	}{
		{"ctrl+shift+space", Combo{Ctrl: true, Shift: true, Key: "space"}},
		{"Ctrl+Shift+Q", Combo{Ctrl: true, Shift: true, Key: "q"}},
		{"alt+x", Combo{Alt: true, Key: "x"}},
		{"control+shift+2", Combo{Ctrl: true, Shift: true, Key: "2"}},
	}
	for _, tc := range cases {
		got, err := ParseCombo(tc.spec)
		if err != nil {
			t.Errorf("ParseCombo(%q) errored: %v", tc.spec, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCombo(%q) = %+v, want %+v", tc.spec, got, tc.want)
		}
	}
}

func TestParseComboRejectsBadBindings(t *testing.T) {
	for _, spec := range []string{
		"",
		"space",
		"ctrl+shift",
		"ctrl+a+b",
		"ctrl++space",
	} {
		if _, err := ParseCombo(spec); err == nil {
			t.Errorf("ParseCombo(%q) accepted", spec)
		}
	}
}

func TestComboString(t *testing.T) {
	c, err := ParseCombo("shift+ctrl+space")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.String(); got != "ctrl+shift+space" {
		t.Errorf("String() = %q", got)
	}
}
