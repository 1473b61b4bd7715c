package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/storefront/internal/media"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

const paymentProofField = "payment_proof"

type deliveryForm struct {
	Address     string `json:"delivery_address" validate:"required,max=500"`
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

type optionalDeliveryForm struct {
	Address     string `json:"delivery_address" validate:"omitempty,max=500"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,phone"`
}

// ValidationError carries one message per offending form field.
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
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid checkout details: " + strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return jsonName(fld.Tag.Get("json"))
	})
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("checkout: failed to register phone validation: %v", err))
	}
	return v
}

var defaultValidator = newValidator()

// ValidateDelivery checks delivery details against the rules of the payment method.
func ValidateDelivery(method order.PaymentMethod, d order.Delivery) error {
	return validateDelivery(defaultValidator, method, d)
}

func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func validateDelivery(v *validator.Validate, method order.PaymentMethod, d order.Delivery) error {
	var form any
	if method.RequiresDelivery() {
		form = deliveryForm{Address: d.Address, PhoneNumber: d.PhoneNumber}
	} else {
		form = optionalDeliveryForm{Address: d.Address, PhoneNumber: d.PhoneNumber}
	}

	err := v.Struct(form)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("checkout: unexpected validation failure: %w", err)
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func proofMessage(err error) string {
	if errors.Is(err, media.ErrFileTooLarge) {
		return "File too large. Maximum size is 5MB."
	}
	return "Unsupported file type. Allowed: png, jpg, jpeg, gif, webp, pdf."
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "phone":
		return "Enter a valid phone number (7-15 digits, optional leading +)."
	default:
		return "Invalid value."
	}
}
