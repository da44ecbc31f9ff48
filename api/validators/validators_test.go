package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
)

type registerBody struct {
	Utorid string `json:"utorid" validate:"required,utorid"`
	Name   string `json:"name" validate:"required,min=1,max=50"`
	Email  string `json:"email" validate:"required,campusemail"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	var dest registerBody
	return DecodeJSONBody(req, &dest)
}

func TestDecodeJSONBodyAcceptsValidRegistration(t *testing.T) {
	if err := decode(t, `{"utorid":"clive123","name":"Clive","email":"clive.su@mail.utoronto.ca"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeJSONBodyRejectsBadFields(t *testing.T) {
	err := decode(t, `{"utorid":"abc","name":"","email":"x@gmail.com"}`)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	for _, field := range []string{"utorid", "name", "email"} {
		if _, ok := details[field]; !ok {
			t.Fatalf("expected detail for %s in %v", field, details)
		}
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	err := decode(t, `{"utorid":"clive123","name":"Clive","email":"c@utoronto.ca","role":"superuser"}`)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsMalformedShapes(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"trailing": `{"utorid":"clive123","name":"Clive","email":"c@utoronto.ca"}{}`,
		"syntax":   `{"utorid":`,
		"type":     `{"utorid":42,"name":"Clive","email":"c@utoronto.ca"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if err := decode(t, body); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestIsCampusEmail(t *testing.T) {
	cases := map[string]bool{
		"a@mail.utoronto.ca":     true,
		"A.B@UTORONTO.CA":        true,
		"a@evilutoronto.ca":      false,
		"@utoronto.ca":           false,
		"a@utoronto.ca.evil.com": false,
		"a@gmail.com":            false,
	}
	for email, want := range cases {
		if got := IsCampusEmail(email); got != want {
			t.Fatalf("%s: expected %v got %v", email, want, got)
		}
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?verified=true&started=maybe", nil)
	v, err := ParseQueryBool(req, "verified")
	if err != nil || v == nil || !*v {
		t.Fatalf("expected true, got %v %v", v, err)
	}
	if v, err := ParseQueryBool(req, "missing"); err != nil || v != nil {
		t.Fatalf("expected nil for absent key, got %v %v", v, err)
	}
	if _, err := ParseQueryBool(req, "started"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParsePageDefaultsAndBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p, err := ParsePage(req)
	if err != nil || p.Page != 1 || p.Limit != 10 {
		t.Fatalf("unexpected defaults %+v %v", p, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/?limit=0", nil)
	if _, err := ParsePage(req); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected limit=0 rejected, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := BearerToken("Bearer abc.def"); err != nil || tok != "abc.def" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	if tok, err := BearerToken("abc.def"); err != nil || tok != "abc.def" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
	for _, raw := range []string{"", "Bearer ", "Bearer a b"} {
		if _, err := BearerToken(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  héllo  ", 2, "hé"},
		{"a\x00b\x1bc", 0, "abc"},
		{"line one\nline two", 0, "line one\nline two"},
		{"ab cd", 3, "ab"},
		{"   ", 5, ""},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in, tc.max); got != tc.want {
			t.Fatalf("CleanText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
