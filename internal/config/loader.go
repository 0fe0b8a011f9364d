package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable gobucket reads.
	EnvPrefix = "GOBUCKET"

	// FileName is the config file base name searched for when no explicit
	// file is given.
	FileName = "gobucket"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps an environment variable to a config key.
type envSpec struct {
	Name string
	Path string
}

// Defaults holds the built-in value of every key.
var Defaults = map[string]any{
	"endpoint":                     "https://localhost:9000",
	"ca_bundle":                    "",
	"region":                       "us-east-1",
	"path_style":                   false,
	"request_timeout":              "0s",
	"retry.max_attempts":           3,
	"retry.mode":                   "standard",
	"list.page_size":               1000,
	"transfer.multipart_threshold": "25MiB",
	"transfer.max_concurrency":     10,
	"drain.policy":                 "fail-fast",
	"drain.batch_size":             1000,
	"drain.rate_limit":             0.0,
	"logging.level":                "info",
	"logging.format":               "console",
	"metrics.pushgateway_url":      "",
	"metrics.job":                  "gobucket",
}

// shortEnv lists the environment names that do not follow the
// GOBUCKET_<SECTION>_<KEY> pattern.
var shortEnv = map[string]string{
	"logging.level":           "LOG_LEVEL",
	"logging.format":          "LOG_FORMAT",
	"metrics.pushgateway_url": "PUSHGATEWAY_URL",
}

// SetDefaults registers Defaults on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
}

// Load builds the configuration from defaults, the first gobucket.yaml
// found in the search paths, the environment and overrides, in increasing
// order of precedence.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.New(), "", overrides...)
}

// LoadFrom is Load on a caller-supplied viper instance, typically one with
// command-line flags already bound. A non-empty file must exist.
func LoadFrom(ctx context.Context, v *viper.Viper, file string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name, envName(spec.Path)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	if err := readConfigFile(v, file); err != nil {
		return nil, err
	}

	for _, override := range overrides {
		for key, value := range flatten("", override) {
			v.Set(key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeHook(),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// UsedFile reports the config file v read, if any.
func UsedFile(v *viper.Viper) string {
	return v.ConfigFileUsed()
}

func readConfigFile(v *viper.Viper, file string) error {
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName(FileName)
	for _, dir := range getUserConfigPaths() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// getUserConfigPaths returns the directories searched for gobucket.yaml:
// the working directory, then $XDG_CONFIG_HOME/gobucket.
func getUserConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, FileName))
	}
	return paths
}

func getEnvSpecs() []envSpec {
	specs := make([]envSpec, 0, len(shortEnv))
	for path, name := range shortEnv {
		specs = append(specs, envSpec{Name: EnvPrefix + "_" + name, Path: path})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// envName is the variable AutomaticEnv derives for a key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}

func byteSizeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(ByteSize(0))
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		if s, ok := data.(string); ok {
			return ParseByteSize(s)
		}
		return data, nil
	}
}
