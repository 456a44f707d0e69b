package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	t.Parallel()

	got, err := ValidateContent("  hello world  ", 4096)
	if err != nil {
		t.Fatalf("ValidateContent() error = %v", err)
	}
	if got != "hello world" {
		t.Errorf("ValidateContent() = %q, want %q", got, "hello world")
	}
}

func TestValidateContent_StripsMarkup(t *testing.T) {
	t.Parallel()

	got, err := ValidateContent(`hi <script>alert("x")</script>there`, 4096)
	if err != nil {
		t.Fatalf("ValidateContent() error = %v", err)
	}
	if strings.Contains(got, "<") || strings.Contains(got, "script") {
		t.Errorf("ValidateContent() = %q, markup not stripped", got)
	}
}

func TestValidateContent_Empty(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "<b></b>"} {
		if _, err := ValidateContent(input, 4096); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("ValidateContent(%q) = %v, want ErrEmptyContent", input, err)
		}
	}
}

func TestValidateContent_TooLong(t *testing.T) {
	t.Parallel()

	if _, err := ValidateContent(strings.Repeat("a", 4097), 4096); !errors.Is(err, ErrContentTooLong) {
		t.Errorf("ValidateContent(long) = %v, want ErrContentTooLong", err)
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{30, 30},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.in); got != tc.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
