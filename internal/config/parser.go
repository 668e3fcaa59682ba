package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"partsim/internal/logging"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*ExperimentConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

// LoadConfigWithContent reads an experiment file on top of the defaults and
// returns it together with the raw file content.
func LoadConfigWithContent(filepath string) (*ExperimentConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	config, err := DecodeConfig(originalContent)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	if err := ValidateConfig(config); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}

	return config, originalContent, nil
}

// DecodeConfig expands ${VAR} references and unmarshals content on top of
// the defaults. The result is not validated.
func DecodeConfig(content string) (*ExperimentConfig, error) {
	config := DefaultExperimentConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(content)), config); err != nil {
		return nil, err
	}
	return config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

// ValidateConfig checks an experiment configuration before any input is loaded.
func ValidateConfig(config *ExperimentConfig) error {
	sim := config.Simulation

	if len(sim.Algorithms) == 0 {
		return fmt.Errorf("%w: at least one algorithm is required", ErrConfiguration)
	}
	for _, name := range sim.Algorithms {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty algorithm name", ErrConfiguration)
		}
	}

	if sim.ForceWays < 0 {
		return fmt.Errorf("%w: force_ways must be >= 0", ErrConfiguration)
	}

	if sim.MaxBandwidth != nil && *sim.MaxBandwidth <= 0 {
		return fmt.Errorf("%w: max_bandwidth must be greater than 0", ErrConfiguration)
	}

	if config.Pool.Workers < 0 {
		return fmt.Errorf("%w: pool workers must be >= 0", ErrConfiguration)
	}

	switch config.Pool.Kind {
	case PoolLocal, "":
	case PoolNATS:
		if config.Pool.NATS.URL == "" {
			return fmt.Errorf("%w: nats pool requires a url", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown pool kind %q", ErrConfiguration, config.Pool.Kind)
	}

	if influx := config.Export.Influx; influx != nil {
		if influx.Host == "" || influx.Token == "" || influx.Org == "" || influx.Bucket == "" {
			return fmt.Errorf("%w: incomplete influx configuration", ErrConfiguration)
		}
	}

	tokens := OptionTokens(config.Options)
	if sim.BWModel != "" {
		tokens = append(tokens, "bw_model="+sim.BWModel)
	}
	opts, err := ParseOptions(tokens)
	if err != nil {
		return err
	}

	if containsAlgorithm(sim.Algorithms, "user") && opts.UserFile == "" {
		return fmt.Errorf("%w: algorithm \"user\" requires the user_file option (e.g. -O user_file=data/user_assignment.csv)", ErrConfiguration)
	}

	return nil
}

func containsAlgorithm(names []string, name string) bool {
	for _, n := range names {
		if strings.TrimSpace(n) == name {
			return true
		}
	}
	return false
}
