package handlers

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	courseCodeTag   = "coursecode"
	courseCodeText  = "{0} must be 2-16 letters or digits"
	courseCodeRegex = regexp.MustCompile(`^[A-Za-z0-9]{2,16}$`)

	requiredTag  = "required"
	requiredText = "{0} is required"
)

// ValidationError lists the request fields that failed validation, keyed by
// their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Validator checks request payloads and renders English messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewValidator builds a Validator with the course code rule registered.
func NewValidator() *Validator {
	validate := validator.New()

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(courseCodeTag, func(fl validator.FieldLevel) bool {
		return courseCodeRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	v := &Validator{validate: validate, translator: translator}
	v.registerTranslation(courseCodeTag, courseCodeText, false)
	v.registerTranslation(requiredTag, requiredText, true)
	return v
}

// Struct validates s, returning *ValidationError on failure.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = fe.Translate(v.translator)
	}
	return &ValidationError{Fields: fields}
}

func (v *Validator) registerTranslation(tag, text string, override bool) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
