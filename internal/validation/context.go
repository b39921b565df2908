package validation

import (
	"context"
)

type languageKey struct{}

// WithLanguages stores the caller's preferred languages, most preferred
// first, e.g. the raw Accept-Language header.
func WithLanguages(ctx context.Context, langs ...string) context.Context {
	return context.WithValue(ctx, languageKey{}, langs)
}

// Languages returns the preferred languages stored in ctx, if any.
func Languages(ctx context.Context) []string {
	langs, _ := ctx.Value(languageKey{}).([]string)
	return langs
}
