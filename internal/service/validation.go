package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"soapstock/backend/internal/domain"
)

const DefaultPhoneRegion = "DZ"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// check runs the struct tags and reports the first failure as a
// domain.ValidationError.
func check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return domain.Invalid(errs[0].Field(), validationMessage(errs[0]))
	}
	return domain.Invalid("", err.Error())
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	}
	return "is invalid"
}

// normalizePhone parses a number in the configured region and returns it
// in E.164 form.
func normalizePhone(number, region string) (string, error) {
	p, err := libphonenumber.Parse(strings.TrimSpace(number), region)
	if err != nil {
		return "", domain.Invalid("phoneNumbers", fmt.Sprintf("%q: %v", number, err))
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", domain.Invalid("phoneNumbers", fmt.Sprintf("%q is not a valid number", number))
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// normalizePhones drops blank entries and normalizes the rest.
func normalizePhones(phones []domain.PhoneNumber, region string) ([]domain.PhoneNumber, error) {
	out := make([]domain.PhoneNumber, 0, len(phones))
	for _, phone := range phones {
		if strings.TrimSpace(phone.Number) == "" {
			continue
		}
		number, err := normalizePhone(phone.Number, region)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PhoneNumber{Name: strings.TrimSpace(phone.Name), Number: number})
	}
	return out, nil
}
