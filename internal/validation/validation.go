// Package validation gates submissions on local field rules and renders
// field and remote error messages in the caller's language.
package validation

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"moflow/internal/workflow/models"
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"rule"`
	Message string `json:"message"`
}

// Errors is the set of failed rules for one value. A nil Errors means valid.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// Fields maps field names to their first message.
func (e Errors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		if _, ok := out[fe.Field]; !ok {
			out[fe.Field] = fe.Message
		}
	}
	return out
}

var cprPattern = regexp.MustCompile(`^\d{10}$`)

type Validator struct {
	validate *validator.Validate
	messages *Messages
}

func New(messages *Messages) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("cpr", validCPR)
	_ = v.RegisterValidation("isodate", validISODate)
	v.RegisterStructValidation(validityOrder, models.Validity{})
	return &Validator{validate: v, messages: messages}
}

func (v *Validator) Messages() *Messages { return v.messages }

// ErrorMessage renders a remote error key in the caller's language.
func (v *Validator) ErrorMessage(ctx context.Context, key string) string {
	return v.messages.ErrorMessage(ctx, key)
}

// Struct validates s and returns nil when every rule passes.
func (v *Validator) Struct(ctx context.Context, s any) Errors {
	err := v.validate.StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errors{{Field: "", Tag: "invalid", Message: v.messages.fieldMessage(ctx, "default", "value")}}
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Tag:     fe.Tag(),
			Message: v.messages.fieldMessage(ctx, fe.Tag(), fe.Field()),
		})
	}
	return out
}

// Merge joins error sets, prefixing the field names of each.
func Merge(prefix string, errs Errors, more ...Errors) Errors {
	var out Errors
	for _, fe := range errs {
		if prefix != "" {
			fe.Field = prefix + "." + fe.Field
		}
		out = append(out, fe)
	}
	for _, m := range more {
		out = append(out, m...)
	}
	return out
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// validCPR accepts ten digits whose first six form a valid ddmmyy date.
func validCPR(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !cprPattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("020106", s[:6])
	return err == nil
}

func validISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

func validityOrder(sl validator.StructLevel) {
	v := sl.Current().Interface().(models.Validity)
	if v.To == nil {
		return
	}
	from, err := time.Parse(time.DateOnly, v.From)
	if err != nil {
		return
	}
	to, err := time.Parse(time.DateOnly, *v.To)
	if err != nil {
		return
	}
	if to.Before(from) {
		sl.ReportError(v.To, "to", "To", "validity_order", "")
	}
}
