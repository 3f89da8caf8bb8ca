package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidations(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return v
}

// registerValidations adds the custom tags used by Config.
func registerValidations(v *validator.Validate) error {
	// bytesize accepts any size go-humanize can parse.
	err := v.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		_, err := humanize.ParseBytes(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("register bytesize validation: %w", err)
	}
	return nil
}

// Validate checks cfg against its struct tags and reports every failing
// field by its YAML path.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", yamlPath(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

var yamlNames = map[string]string{
	"Config":        "",
	"Env":           "env",
	"Backend":       "backend",
	"URL":           "url",
	"Timeout":       "timeout",
	"RateLimit":     "rate_limit",
	"RateBurst":     "rate_burst",
	"Image":         "image",
	"MaxDimension":  "max_dimension",
	"MaxUploadSize": "max_upload_size",
	"Log":           "log",
	"Level":         "level",
	"Patient":       "patient",
	"Phone":         "phone",
	"Region":        "region",
	"Stub":          "stub",
	"Addr":          "addr",
}

// yamlPath turns "Config.Backend.URL" into "backend.url".
func yamlPath(namespace string) string {
	var parts []string
	for _, p := range strings.Split(namespace, ".") {
		if name, ok := yamlNames[p]; ok {
			if name != "" {
				parts = append(parts, name)
			}
			continue
		}
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ".")
}
