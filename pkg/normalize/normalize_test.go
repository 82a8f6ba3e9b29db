package normalize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain passthrough", "hello world", "hello world"},
		{"case folded", "SELECT * FROM Users", "select * from users"},
		{"fullwidth collapsed", "ＳＥＬＥＣＴ", "select"},
		{"zero width stripped", "se​le‌ct", "select"},
		{"word joiner stripped", "dr⁠op table", "drop table"},
		{"bom stripped", "﻿hello", "hello"},
		{"crlf to lf", "line one\r\nline two", "line one\nline two"},
		{"bare cr to lf", "line one\rline two", "line one\nline two"},
		{"tabs collapse to space", "a\t\tb", "a b"},
		{"nbsp collapses", "a  b", "a b"},
		{"ideographic space collapses", "a　b", "a b"},
		{"line separator collapses", "a b", "a b"},
		{"lines trimmed", "  first  \n\t second \t", "first\nsecond"},
		{"overall trimmed", "   padded   ", "padded"},
		{"blank lines survive", "a\n\nb", "a\n\nb"},
		{"sharp s folds", "STRAßE", "strasse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"ＳＥＬＥＣＴ   mixed\r\nthings​",
		"  MULTI\tline \r\n\r\n input   here  ",
		"STRAßE ⁠ ﻿",
	}
	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		if once != twice {
			t.Errorf("Text not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestTextPreservesNewlineStructure(t *testing.T) {
	got := Text("first line\nsecond line\nthird line")
	want := "first line\nsecond line\nthird line"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}
