package validate

import (
	"testing"

	perr "repocrawl/internal/platform/errors"
)

type sample struct {
	Token string `env:"GITHUB_TOKEN" validate:"required"`
	Pages int    `env:"CRAWL_MAX_PAGES" validate:"min=1,max=20"`
	Bands []int  `env:"CRAWL_STAR_BANDS" validate:"omitempty,ascending"`
	Mode  string `validate:"oneof=day week month year"`
}

func TestStruct(t *testing.T) {
	ok := sample{Token: "t", Pages: 3, Bands: []int{10, 100}, Mode: "month"}
	if err := Struct(ok); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	cases := []struct {
		name  string
		in    sample
		field string
		msg   string
	}{
		{"missing token", sample{Pages: 1, Mode: "day"}, "GITHUB_TOKEN", "GITHUB_TOKEN is a required field"},
		{"pages low", sample{Token: "t", Pages: 0, Mode: "day"}, "CRAWL_MAX_PAGES", "CRAWL_MAX_PAGES must be at least 1"},
		{"pages high", sample{Token: "t", Pages: 21, Mode: "day"}, "CRAWL_MAX_PAGES", "CRAWL_MAX_PAGES must be at most 20"},
		{"bands", sample{Token: "t", Pages: 1, Bands: []int{10, 10}, Mode: "day"}, "CRAWL_STAR_BANDS", "CRAWL_STAR_BANDS must be strictly ascending"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Struct(c.in)
			if !perr.IsCode(err, perr.ErrorCodeValidation) {
				t.Fatalf("want validation error, got %v", err)
			}
			e, _ := perr.As(err)
			if e.Field() != c.field {
				t.Fatalf("field = %q, want %q", e.Field(), c.field)
			}
			if err.Error() != c.msg {
				t.Fatalf("msg = %q, want %q", err.Error(), c.msg)
			}
		})
	}
}

func TestFieldAndMessage_NonValidatorError(t *testing.T) {
	if f, m := FieldAndMessage(nil); f != "" || m != "" {
		t.Fatalf("nil should be empty")
	}
	if err := Struct(42); err == nil {
		t.Fatalf("validating a non-struct should fail")
	}
}
