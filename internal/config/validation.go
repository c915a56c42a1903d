package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// maxInterfaceName is IFNAMSIZ minus the terminating NUL.
const maxInterfaceName = 15

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("portnum", validatePort); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("ifname", validateInterfaceName); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})
}

// Validate checks that every configured value is well formed.
func (s Snapshot) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s=%q: %s", fe.Field(), fe.Value(), validationMessage(fe)))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "ip":
		return "must be an IP address"
	case "ipv4":
		return "must be an IPv4 address"
	case "ipv6":
		return "must be an IPv6 address"
	case "portnum":
		return "must be a port number between 1 and 65535"
	case "ifname":
		return "must be a valid interface name"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func validatePort(fl validator.FieldLevel) bool {
	_, err := ParsePort(fl.Field().String())
	return err == nil
}

func validateInterfaceName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > maxInterfaceName || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == ':' || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// ParsePort parses a decimal TCP/UDP port in the range 1..65535.
func ParsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("port %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("port %q: must be > 0", s)
	}
	return uint16(n), nil
}
