package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"demostack/internal/logging"
)

// envPrefix namespaces all environment overrides.
const envPrefix = "DEMOSTACK_"

// field describes one options-struct field eligible for overrides.
type field struct {
	value    reflect.Value
	tomlPath string
	envKey   string
	flagName string
}

// LoadConfig layers configuration into an options struct with the
// precedence CLI flags > environment > config file > defaults. Fields
// whose flag was set explicitly on the command line are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	fields, configPath := scanFields(opts, cmd)

	if configPath != "" {
		if err := applyFile(fields, configPath); err != nil {
			return err
		}
	}
	applyEnv(fields)
	return nil
}

// scanFields collects the overridable fields and the config file path.
// Fields with an explicitly changed CLI flag are excluded up front.
func scanFields(opts any, cmd *cobra.Command) ([]field, string) {
	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	var fields []field
	var configPath string
	for i := 0; i < v.NumField(); i++ {
		ft := t.Field(i)
		if ft.Name == "Config" {
			configPath = v.Field(i).String()
			continue
		}
		f := field{
			value:    v.Field(i),
			tomlPath: ft.Tag.Get("toml"),
			envKey:   ft.Tag.Get("env"),
			flagName: flagName(ft.Name),
		}
		if changed[f.flagName] {
			continue
		}
		fields = append(fields, f)
	}
	return fields, configPath
}

func applyFile(fields []field, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing config file is fine, defaults apply
		return nil
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}

	for _, f := range fields {
		if f.tomlPath == "" {
			continue
		}
		if value := lookup(doc, f.tomlPath); value != nil {
			assign(f.value, value)
		}
	}
	return nil
}

func applyEnv(fields []field) {
	for _, f := range fields {
		if f.envKey == "" {
			continue
		}
		if raw := os.Getenv(envPrefix + f.envKey); raw != "" {
			assignString(f.value, raw)
		}
	}
}

// flagName derives the CLI flag for a field: "LoggingLevel" becomes
// "logging-level".
func flagName(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			sb.WriteByte('-')
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// lookup walks a dotted path through nested TOML tables.
func lookup(doc map[string]any, path string) any {
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := doc[key].(map[string]any)
		if !ok {
			return nil
		}
		doc = next
	}
	return doc[keys[len(keys)-1]]
}

// assign stores a decoded TOML value, ignoring type mismatches.
func assign(dst reflect.Value, value any) {
	if !dst.CanSet() {
		return
	}
	switch dst.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			dst.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			dst.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			dst.SetInt(n)
		case int:
			dst.SetInt(int64(n))
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return
		}
		raw, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		dst.Set(reflect.ValueOf(out))
	}
}

// assignString stores an environment value, parsing per field type.
// Slices take comma-separated values.
func assignString(dst reflect.Value, raw string) {
	if !dst.CanSet() {
		return
	}
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			dst.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			dst.SetInt(n)
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		dst.Set(reflect.ValueOf(out))
	}
}

// LoadLoggingConfig reads the [logging] table of a TOML config file.
// "level" and "format" are reserved keys, every other key is treated as
// a per-module level. Missing or unreadable files yield the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}
	var doc struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return cfg
	}

	for key, value := range doc.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
