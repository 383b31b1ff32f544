package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SHOPSYNC_DESTINATION_TYPE
const EnvPrefix = "SHOPSYNC"

// legacyEnv maps config keys to the environment variables the original
// pipeline read its credentials from.
var legacyEnv = map[string][]string{
	"shop.url":                {"SHOPIFY_SHOP_URL"},
	"shop.access_token":       {"SHOPIFY_ACCESS_TOKEN"},
	"shop.client_id":          {"SHOPIFY_CLIENT_ID"},
	"shop.client_secret":      {"SHOPIFY_CLIENT_SECRET"},
	"shop.token_url":          nil,
	"partner.organization_id": {"SHOPIFY_PARTNER_ORGANIZATION_ID"},
	"partner.access_token":    {"SHOPIFY_PARTNER_ACCESS_TOKEN"},
	"partner.base_url":        nil,
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in increasing order of precedence. ${VAR} references inside
// the file are substituted before parsing.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v, NewConfig()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the --config flag
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(substituteEnvVars(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, cfg *Config) error {
	data, err := Dump(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Dump renders cfg as YAML
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

// setDefaults registers every key of defaults with viper so that environment
// overrides are seen by Unmarshal even when the file omits the key.
func setDefaults(v *viper.Viper, defaults *Config) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to read defaults: %w", err)
	}
	flattenInto(v, "", tree)
	return nil
}

func flattenInto(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flattenInto(v, full, nested)
			continue
		}
		v.SetDefault(full, value)
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
