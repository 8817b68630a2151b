package utils

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CheckRequired returns error listing all missing config keys
func CheckRequired(cfg *viper.Viper, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(cfg.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no config values for: %s", strings.Join(missing, ", "))
	}
	return nil
}
