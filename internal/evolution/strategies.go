package evolution

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

//go:embed strategies.yaml
var builtinStrategies []byte

var strategyValidate = validator.New()

type catalogFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// #region load

// DefaultStrategies returns the embedded catalog.
func DefaultStrategies() []Strategy {
	s, err := ParseStrategies(builtinStrategies)
	if err != nil {
		panic(fmt.Sprintf("embedded strategies: %v", err))
	}
	return s
}

// LoadStrategies reads a catalog file.
func LoadStrategies(path string) ([]Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategies %s: %w", path, err)
	}
	return ParseStrategies(data)
}

// ParseStrategies decodes and validates a YAML catalog.
func ParseStrategies(data []byte) ([]Strategy, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, operator.Wrap(operator.KindValidation, "strategies", "", err)
	}
	seen := make(map[string]bool, len(f.Strategies))
	for _, s := range f.Strategies {
		if err := ValidateStrategy(s); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, operator.Errorf(operator.KindValidation, "strategies", s.Name, "duplicate strategy")
		}
		seen[s.Name] = true
	}
	return f.Strategies, nil
}

// #endregion

// #region validate

// ValidateStrategy checks field constraints, that every field is a known
// state field, and that Primary and every threshold name a target field.
func ValidateStrategy(s Strategy) error {
	if err := strategyValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return operator.Errorf(operator.KindValidation, "strategy", s.Name,
				"field %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return operator.Wrap(operator.KindValidation, "strategy", s.Name, err)
	}
	for field := range s.Target {
		if !state.IsKnownField(field) {
			return operator.Errorf(operator.KindValidation, "strategy", s.Name, "unknown target field %q", field)
		}
	}
	if _, ok := s.Target[s.Primary]; !ok {
		return operator.Errorf(operator.KindValidation, "strategy", s.Name, "primary field %q has no target", s.Primary)
	}
	for field := range s.Thresholds {
		if _, ok := s.Target[field]; !ok {
			return operator.Errorf(operator.KindValidation, "strategy", s.Name, "threshold for %q has no target", field)
		}
	}
	return nil
}

// #endregion
