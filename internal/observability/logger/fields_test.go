package logger

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"jane@contoso.com": "ja***@contoso.com",
		"j@contoso.com":    "***@contoso.com",
		"ab":               "***",
		"abcdef":           "ab***",
		"":                 "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
