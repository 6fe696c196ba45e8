package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

const moduleName = "config"

// ConfigParams are the dependencies of NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// NewConfigProvider loads and validates the configuration and applies the
// log level. Any failure is a fatal configuration error.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Weather.System.Logging.Level)
	logger.Infof("Configuration loaded: database %s %s@%s:%d/%s schema=%s",
		cfg.Weather.Database.Type, cfg.Weather.Database.User, cfg.Weather.Database.Host,
		cfg.Weather.Database.Port, cfg.Weather.Database.Database, cfg.Weather.Database.Schema)
	return cfg, nil
}

// LoadConfig layers defaults, the embedded YAML (with environment expansion)
// and explicit environment variables, then validates the result.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}

	cfg := NewConfig()
	if len(embedded) > 0 {
		expanded := NewOsEnvironmentExpander().Expand(embedded)
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, exception.New(moduleName, exception.KindConfig, "failed to parse application.yaml", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, exception.New(moduleName, exception.KindConfig, "failed to apply environment overrides", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, exception.New(moduleName, exception.KindConfig, "invalid configuration", err)
	}
	return cfg, nil
}

// Validate checks struct constraints and the schema allow-list. Every problem
// is reported, not just the first.
func Validate(cfg *Config) error {
	var result *multierror.Error

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		names := envNames(reflect.TypeOf(*cfg), "Config")
		for _, fe := range verrs {
			result = multierror.Append(result, describe(fe, names[fe.StructNamespace()]))
		}
	}

	if cfg.Weather.Database.Schema != "" {
		if _, err := warehouse.ParseSchema(cfg.Weather.Database.Schema, cfg.Weather.Pipeline.AllowedSchemas); err != nil {
			result = multierror.Append(result, fmt.Errorf("WEATHER_DB_SCHEMA: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func describe(fe validator.FieldError, env string) error {
	field := fe.Namespace()
	if env != "" {
		field = env
	}
	switch fe.Tag() {
	case "required", "required_unless", "required_if":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s failed '%s' validation (value %v)", field, fe.ActualTag(), fe.Value())
	}
}

// envNames maps Go struct namespaces to the environment variable naming the field.
func envNames(t reflect.Type, namespace string) map[string]string {
	out := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		ns := namespace + "." + f.Name
		if env := f.Tag.Get("env"); env != "" {
			out[ns] = env
		}
		if f.Type.Kind() == reflect.Struct {
			for k, v := range envNames(f.Type, ns) {
				out[k] = v
			}
		}
	}
	return out
}

// loadStructFromEnv sets every field carrying an `env` tag whose variable is
// present in the environment. Slices are read as comma-separated lists.
func loadStructFromEnv(val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envName := fieldType.Tag.Get("env")
		if envName == "" {
			continue
		}
		envValue, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("%s: %w", envName, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", value)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("expected a number, got %q", value)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("expected a boolean, got %q", value)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
