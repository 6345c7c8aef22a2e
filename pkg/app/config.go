package app

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// applyConfigFile reads a YAML config file with viper and applies its values
// to any flag the user did not set explicitly on the command line. Flag names
// use dots as group separators ("manifest.server-url"), which map naturally
// onto nested YAML keys.
func applyConfigFile(path string, fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var applyErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if applyErr != nil || f.Changed {
			return
		}
		if !v.IsSet(f.Name) {
			return
		}

		val := v.Get(f.Name)
		var str string
		switch t := val.(type) {
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			str = strings.Join(parts, ",")
		default:
			str = fmt.Sprintf("%v", t)
		}

		if err := fs.Set(f.Name, str); err != nil {
			applyErr = fmt.Errorf("invalid config value for %s: %w", f.Name, err)
		}
	})

	return applyErr
}
