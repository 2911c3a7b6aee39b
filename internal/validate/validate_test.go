package validate_test

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"sealchat/internal/domain"
	"sealchat/internal/validate"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want *domain.ValidationError, got %T (%v)", err, err)
	}
	return verr.Field
}

func TestEmail(t *testing.T) {
	valid := []string{
		"john.doe@example.com",
		"a+b@sub.example.co",
		"x_y-z@example.io",
	}
	for _, s := range valid {
		if err := validate.Email(s); err != nil {
			t.Errorf("Email(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{
		"",
		"john..doe@example.com",
		".john@example.com",
		"john.@example.com",
		"john@example",
		"john@example.c",
		"not-an-email",
		"a@b@c.com",
		strings.Repeat("x", 250) + "@example.com",
	}
	for _, s := range invalid {
		err := validate.Email(s)
		if err == nil {
			t.Errorf("Email(%q) = nil, want error", s)
			continue
		}
		if got := fieldOf(t, err); got != "email" {
			t.Errorf("Email(%q) field = %q, want email", s, got)
		}
	}
}

func TestUsername(t *testing.T) {
	for _, s := range []string{"bob", "Job_Hunter-99", strings.Repeat("a", 30)} {
		if err := validate.Username(s); err != nil {
			t.Errorf("Username(%q) = %v, want nil", s, err)
		}
	}
	for _, s := range []string{"", "ab", strings.Repeat("a", 31), "bad name", "nope!", "sneaky@user"} {
		if validate.Username(s) == nil {
			t.Errorf("Username(%q) = nil, want error", s)
		}
	}
}

func TestMessageContent(t *testing.T) {
	if err := validate.MessageContent("hello"); err != nil {
		t.Fatalf("MessageContent: %v", err)
	}
	for _, s := range []string{"", "   ", "\n\t", strings.Repeat("x", validate.MaxContentLength+1)} {
		if validate.MessageContent(s) == nil {
			t.Errorf("MessageContent(%q...) = nil, want error", truncate(s))
		}
	}
}

func TestUUID(t *testing.T) {
	if err := validate.UUID("5f1c6a1e-8f0a-4f5e-9c55-0f6d8f3b2a11", "conversation_id"); err != nil {
		t.Fatalf("UUID: %v", err)
	}
	for _, s := range []string{
		"",
		"5f1c6a1e8f0a4f5e9c550f6d8f3b2a11",                       // no dashes
		"{5f1c6a1e-8f0a-4f5e-9c55-0f6d8f3b2a11}",                 // braced
		"urn:uuid:5f1c6a1e-8f0a-4f5e-9c55-0f6d8f3b2a11",          // urn
		"zf1c6a1e-8f0a-4f5e-9c55-0f6d8f3b2a11",                   // bad hex
	} {
		err := validate.UUID(s, "message_id")
		if err == nil {
			t.Errorf("UUID(%q) = nil, want error", s)
			continue
		}
		if got := fieldOf(t, err); got != "message_id" {
			t.Errorf("UUID(%q) field = %q, want message_id", s, got)
		}
	}
}

func TestSecret(t *testing.T) {
	if err := validate.Secret("Tr0ub4dor&Three"); err != nil {
		t.Fatalf("Secret: %v", err)
	}
	for _, s := range []string{"short1A!", "alllowercase1!", "ALLUPPERCASE1!", "NoDigitsHere!", "NoSymbols123a"} {
		if validate.Secret(s) == nil {
			t.Errorf("Secret(%q) = nil, want error", s)
		}
	}
}

func TestSanitizeStripsMarkup(t *testing.T) {
	cases := []struct{ in, want string }{
		{"<script>alert(1)</script>hello", "hello"},
		{"  plain text  ", "plain text"},
		{"<b>bold</b> words", "bold words"},
		{"<style>p{}</style>text", "text"},
		{`<b onclick="alert(1)">hi</b>`, "hi"},
		{"a <img src=x onerror=alert(1)> b", "a  b"},
	}
	for _, c := range cases {
		if got := validate.Sanitize(c.in, validate.SanitizeOptions{}); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeAllowHTML(t *testing.T) {
	opts := validate.SanitizeOptions{AllowHTML: true}
	cases := []struct{ in, want string }{
		{"<b>bold</b>", "<b>bold</b>"},
		{"<script>alert(1)</script><p>ok</p>", "<p>ok</p>"},
		{`<a href="https://example.com" target="_blank" rel="noopener">x</a>`, `<a href="https://example.com" target="_blank" rel="noopener">x</a>`},
		{`<a href="javascript:alert(1)">x</a>`, "<a>x</a>"},
		{`<a data-evil="1" href="/jobs">x</a>`, `<a href="/jobs">x</a>`},
		{`<p onclick="alert(1)">x</p>`, "<p>x</p>"},
		{"<ul><li>one</li></ul>", "<ul><li>one</li></ul>"},
		{"<div>flat</div>", "flat"},
		{"line<br/>break", "line<br>break"},
	}
	for _, c := range cases {
		if got := validate.Sanitize(c.in, opts); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<script>alert(1)</script>hello",
		"<<b>script>alert(1)<</b>/script>x",
		`<a href="https://example.com" style="x">link</a> <em>hi</em>`,
		"plain",
	}
	for _, in := range inputs {
		for _, opts := range []validate.SanitizeOptions{{}, {AllowHTML: true}} {
			once := validate.Sanitize(in, opts)
			twice := validate.Sanitize(once, opts)
			if once != twice {
				t.Errorf("Sanitize not idempotent (allowHTML=%v): %q -> %q -> %q", opts.AllowHTML, in, once, twice)
			}
		}
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("a", validate.MaxContentLength+500)
	if got := validate.Sanitize(long, validate.SanitizeOptions{}); len(got) != validate.MaxContentLength {
		t.Fatalf("len = %d, want %d", len(got), validate.MaxContentLength)
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("€", validate.MaxContentLength+500)
	got := validate.Sanitize(long, validate.SanitizeOptions{})
	if !utf8.ValidString(got) {
		t.Fatalf("truncated output is not valid UTF-8, tail %q", got[len(got)-4:])
	}
	if n := utf8.RuneCountInString(got); n != validate.MaxContentLength {
		t.Fatalf("rune count = %d, want %d", n, validate.MaxContentLength)
	}

	// The cap is counted in characters, so max-length multi-byte text
	// passes content validation untouched.
	exact := strings.Repeat("€", validate.MaxContentLength)
	if validate.Sanitize(exact, validate.SanitizeOptions{}) != exact {
		t.Fatal("text at exactly the cap must survive intact")
	}
	if err := validate.MessageContent(exact); err != nil {
		t.Fatalf("MessageContent at the cap: %v", err)
	}
	if validate.MessageContent(exact+"€") == nil {
		t.Fatal("one rune over the cap must be rejected")
	}
}

func TestEditWindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	exactly := now.Add(-15 * time.Minute)
	if !validate.WithinEditWindow(exactly, now) {
		t.Fatal("message exactly 15m0s old must still be editable")
	}
	justOver := now.Add(-15*time.Minute - time.Second)
	if validate.WithinEditWindow(justOver, now) {
		t.Fatal("message 15m1s old must not be editable")
	}
	if !validate.WithinDeleteWindow(exactly, now) {
		t.Fatal("message exactly 15m0s old must still be deletable")
	}
	if validate.WithinDeleteWindow(justOver, now) {
		t.Fatal("message 15m1s old must not be deletable")
	}

	// Future created_at (skew) counts as fresh.
	if !validate.WithinEditWindow(now.Add(time.Minute), now) {
		t.Fatal("future created_at must count as within the window")
	}
}

func truncate(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
