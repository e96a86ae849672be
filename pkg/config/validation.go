package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittobtt/internal/bytesize"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags and the cross-field rules
// tags cannot express. All violations are reported together.
func Validate(cfg *Config) error {
	var problems []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, formatFieldError(fe))
		}
	}

	problems = append(problems, validateStore(&cfg.Store)...)
	problems = append(problems, validateSnapshot(&cfg.Snapshot)...)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed '%s=%s' (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed '%s' (got %v)", field, fe.Tag(), fe.Value())
}

func validateStore(cfg *StoreConfig) []string {
	var problems []string
	if cfg.Type == StoreTypeMemory && cfg.Size == 0 {
		problems = append(problems, "Store.Size: memory store requires a size")
	}
	if cfg.Size != 0 && cfg.Size%bytesize.ByteSize(4096) != 0 {
		problems = append(problems, fmt.Sprintf("Store.Size: %d is not a multiple of 4096", cfg.Size))
	}
	return problems
}

func validateSnapshot(cfg *SnapshotConfig) []string {
	if cfg.PartSize%bytesize.ByteSize(4096) != 0 {
		return []string{fmt.Sprintf("Snapshot.PartSize: %d is not a multiple of 4096", cfg.PartSize)}
	}
	return nil
}
