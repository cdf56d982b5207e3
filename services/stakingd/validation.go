package stakingd

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"

	"nftstake/crypto"
	"nftstake/native/staking"
)

// Validator wraps the validator instance with the staking tags registered.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("account", validateAccount)
	_ = v.RegisterValidation("address", validateAddress)
	_ = v.RegisterValidation("amount", validateAmount)
	_ = v.RegisterValidation("lock", validateLock)
	return &Validator{validate: v}
}

// ValidateStruct validates a struct using tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// FormatValidationError maps validation failures to per-field messages
// without leaking Go struct names.
func FormatValidationError(err error) map[string]string {
	if err == nil {
		return nil
	}
	errs := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["error"] = "Invalid request format"
		return errs
	}
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			errs[field] = "This field is required"
		case "account":
			errs[field] = fmt.Sprintf("Must be a %s address", crypto.AccountPrefix)
		case "address":
			errs[field] = "Must be a bech32 address"
		case "amount":
			errs[field] = "Must be a non-negative base-10 integer"
		case "lock":
			errs[field] = "Must be one of 7, 14, 30"
		case "max":
			errs[field] = fmt.Sprintf("Must contain at most %s entries", e.Param())
		case "min":
			errs[field] = fmt.Sprintf("Must contain at least %s entries", e.Param())
		default:
			errs[field] = "Invalid value"
		}
	}
	return errs
}

func validateAccount(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	_, err := crypto.ParseAccount(raw)
	return err == nil
}

func validateAddress(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	_, err := crypto.ParseRaw(raw)
	return err == nil
}

func validateAmount(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	v, ok := new(big.Int).SetString(raw, 10)
	return ok && v.Sign() >= 0
}

func validateLock(fl validator.FieldLevel) bool {
	return staking.LockOption(fl.Field().Uint()).Valid()
}

func mustAddress(raw string) [20]byte {
	addr, err := crypto.ParseRaw(raw)
	if err != nil {
		panic(fmt.Sprintf("validated address %q failed to parse: %v", raw, err))
	}
	return addr
}

func parseAmount(raw string) *big.Int {
	if raw == "" {
		return big.NewInt(0)
	}
	v, _ := new(big.Int).SetString(raw, 10)
	return v
}
