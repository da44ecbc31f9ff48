package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

var (
	validate = newValidator()

	utoridPattern = regexp.MustCompile(`^[A-Za-z0-9]{7,8}$`)
)

var campusEmailDomains = []string{"@mail.utoronto.ca", "@utoronto.ca"}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("utorid", func(fl validator.FieldLevel) bool {
		return utoridPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("campusemail", func(fl validator.FieldLevel) bool {
		return IsCampusEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return security.ValidatePasswordPolicy(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("birthday", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.DateOnly, fl.Field().String())
		return err == nil
	})
	return v
}

// IsCampusEmail reports whether the address belongs to a university domain.
func IsCampusEmail(value string) bool {
	email := strings.ToLower(strings.TrimSpace(value))
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	for _, domain := range campusEmailDomains {
		if strings.HasSuffix(email, domain) && len(email) == at+len(domain) {
			return true
		}
	}
	return false
}

// DecodeJSONBody reads exactly one JSON object into dest and validates it.
// Unknown fields and trailing data are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]string{"error": bodyErrorDetail(err)})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	return ValidateStruct(dest)
}

func bodyErrorDetail(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.Kind())
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "truncated JSON"
	}
	return err.Error()
}

// ValidateStruct runs the struct tags on an already decoded value.
func ValidateStruct(dest any) error {
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "utorid":
		return "must be 7-8 alphanumeric characters"
	case "campusemail":
		return "must be a University of Toronto email"
	case "password":
		return security.ErrPasswordPolicy.Error()
	case "birthday":
		return "must be a YYYY-MM-DD date"
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}
