package jsonc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCheck_Valid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty object", `{}`},
		{"empty array", `[]`},
		{"simple object", `{"a": 1, "b": "two", "c": true, "d": null}`},
		{"nested", `{"tasks": [{"label": "build", "args": ["-v", 2]}]}`},
		{"line comment", "{\n// a comment\n\"a\": 1\n}"},
		{"block comment", `{"a": /* inline */ 1}`},
		{"trailing comma object", "{\"a\": 1,\n}"},
		{"trailing comma array", `{"a": [1, 2, 3,]}`},
		{"comment before trailing comma", "{\"a\": 1, // note\n}"},
		{"numbers", `[0, -1, 1.5, 2e10, 3.14E-2]`},
		{"escapes", `{"a": "line\nbreak A \" \\"}`},
		{"top-level string", `"just a string"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errs := Check(tt.src); len(errs) != 0 {
				t.Errorf("Check(%q) = %v, want no errors", tt.src, errs)
			}
		})
	}
}

func TestCheck_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{"empty input", ``, CodeValueExpected},
		{"only whitespace", "  \n\t", CodeValueExpected},
		{"unterminated string", `{"a": "oops}`, CodeUnterminatedString},
		{"unterminated comment", `{"a": 1} /* never closed`, CodeUnterminatedComment},
		{"invalid escape", `{"a": "\q"}`, CodeInvalidEscape},
		{"bad unicode escape", `{"a": "\u12"}`, CodeInvalidEscape},
		{"invalid number", `{"a": 1.}`, CodeInvalidNumber},
		{"missing value", `{"a": }`, CodeValueExpected},
		{"missing colon", `{"a" 1}`, CodeColonExpected},
		{"missing comma", `{"a": 1 "b": 2}`, CodeCommaExpected},
		{"unclosed object", `{"a": 1`, CodeCloseBraceExpected},
		{"unclosed array", `[1, 2`, CodeCloseBracketExpected},
		{"bare word", `{"a": yes}`, CodeInvalidCharacter},
		{"number key", `{1: 2}`, CodePropertyNameExpected},
		{"trailing content", `{} {}`, CodeTrailingContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Check(tt.src)
			if len(errs) == 0 {
				t.Fatalf("Check(%q) = no errors, want %v", tt.src, tt.code)
			}
			found := false
			for _, e := range errs {
				if e.Code == tt.code {
					found = true
				}
			}
			if !found {
				t.Errorf("Check(%q) = %v, want error with code %v", tt.src, errs, tt.code)
			}
		})
	}
}

func TestCheck_CollectsMultipleErrors(t *testing.T) {
	src := `{"a": , "b": yes}`
	errs := Check(src)
	if len(errs) < 2 {
		t.Fatalf("Check(%q) = %d errors, want at least 2: %v", src, len(errs), errs)
	}
}

func TestCheck_ErrorOffsets(t *testing.T) {
	src := `{"a": }`
	errs := Check(src)
	if len(errs) != 1 {
		t.Fatalf("Check(%q) = %d errors, want 1: %v", src, len(errs), errs)
	}
	if errs[0].Offset != 6 {
		t.Errorf("error offset = %d, want 6", errs[0].Offset)
	}
	if errs[0].Length != 1 {
		t.Errorf("error length = %d, want 1", errs[0].Length)
	}
}

func TestCheck_Terminates(t *testing.T) {
	// Pathological inputs must not loop forever.
	inputs := []string{
		`[}`,
		`{]`,
		`[,,,]`,
		`{:::}`,
		`[{]}`,
		strings.Repeat("[", 50),
	}
	for _, src := range inputs {
		errs := Check(src)
		if len(errs) == 0 {
			t.Errorf("Check(%q) = no errors, want at least one", src)
		}
	}
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"line comments", "{\n  // build tasks\n  \"a\": 1\n}"},
		{"block comments", `{"a": /* the answer */ 42}`},
		{"trailing comma object", "{\"a\": 1,\n}"},
		{"trailing comma array", `[1, 2, 3,]`},
		{"trailing comma before comment", "[1, 2, // last\n]"},
		{"comment chars in string", `{"url": "http://example.com/*x*/"}`},
		{"nested trailing commas", `{"a": [1,], "b": {"c": 2,},}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean := Strip(tt.src)
			if len(clean) != len(tt.src) {
				t.Errorf("Strip changed length: %d -> %d", len(tt.src), len(clean))
			}
			if !json.Valid([]byte(clean)) {
				t.Errorf("Strip(%q) = %q, not valid JSON", tt.src, clean)
			}
		})
	}
}

func TestStrip_PreservesStringContent(t *testing.T) {
	src := `{"cmd": "a // not a comment", "quote": "she said \"hi\""}`
	clean := Strip(src)
	if clean != src {
		t.Errorf("Strip altered string content:\n got %q\nwant %q", clean, src)
	}
}

func TestStrip_PreservesNewlinesInComments(t *testing.T) {
	src := "{\n/* multi\nline\ncomment */\n\"a\": 1\n}"
	clean := Strip(src)
	if strings.Count(clean, "\n") != strings.Count(src, "\n") {
		t.Errorf("Strip changed newline count:\n got %q\nwant %q", clean, src)
	}
}

func TestSyntaxError_Error(t *testing.T) {
	e := &SyntaxError{Offset: 12, Length: 3, Code: CodeValueExpected}
	msg := e.Error()
	if !strings.Contains(msg, "12") || !strings.Contains(msg, "3") {
		t.Errorf("Error() = %q, want offset and length included", msg)
	}
	if !strings.Contains(msg, "value expected") {
		t.Errorf("Error() = %q, want code description included", msg)
	}
}
