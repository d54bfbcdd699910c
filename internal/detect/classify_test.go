package detect

import "testing"

func TestKeepText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"real leak", "John Q. Public, SSN 123-45-6789", true},
		{"single word", "Acme", true},
		{"empty", "", false},
		{"whitespace only", "   \t  ", false},
		{"repeated X fill", "XXXXXXXX", false},
		{"repeated spaces", "        ", false},
		{"single char kept", "X", true},
		{"punctuation only", "-----", false},
		{"placeholder redacted", "REDACTED", false},
		{"placeholder confidential", "Confidential", false},
		{"placeholder phrase", "Redacted and publicly filed", false},
		{"placeholder name redacted", "Name  Redacted", false},
		{"placeholder with real text", "REDACTED account 4417", true},
		{"word containing placeholder", "redactions", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keepText(tt.text); got != tt.want {
				t.Errorf("keepText(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsRepeatedChars(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"XXXX", true},
		{"aa", true},
		{"X", false},
		{"", false},
		{"XY", false},
		{"XXXY", false},
	}

	for _, tt := range tests {
		if got := isRepeatedChars(tt.text); got != tt.want {
			t.Errorf("isRepeatedChars(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestLooksLikeDate(t *testing.T) {
	dates := []string{
		"12/13/21",
		"12/14/2111",
		"1/1/22",
		"1/1/2022",
		"01-02-2222",
		"2021-01-05",
		"2021-12-31",
		"12/13/21 1/1/2022",
		"2021-01-05 12/13/21",
	}
	for _, d := range dates {
		if !looksLikeDate(d) {
			t.Errorf("looksLikeDate(%q) = false, want true", d)
		}
	}

	notDates := []string{
		"111/11/11",
		"asdf-",
		"asdf 1/1/2022",
		"",
	}
	for _, d := range notDates {
		if looksLikeDate(d) {
			t.Errorf("looksLikeDate(%q) = true, want false", d)
		}
	}
}
