// Package settings loads process-level configuration from the
// environment and an optional neonlanes.yaml file. Project-scoped
// configuration lives in the database config table instead.
package settings

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings are the tunables the sync engine reads at runtime.
type Settings struct {
	JiraUserAgent       string `mapstructure:"jira_user_agent"`
	JiraDefaultAssignee string `mapstructure:"jira_default_assignee_account_id"`
	SyncPageSize        int    `mapstructure:"sync_page_size"`
	SyncMaxPages        int    `mapstructure:"sync_max_pages"`
}

// Load reads settings with precedence: env (NEONLANES_*) over
// neonlanes.yaml over defaults. A missing config file is not an error.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetDefault("jira_user_agent", "NeonLanes/0.1 (local)")
	v.SetDefault("jira_default_assignee_account_id", "")
	v.SetDefault("sync_page_size", 50)
	v.SetDefault("sync_max_pages", 200)

	v.SetConfigName("neonlanes")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("NEONLANES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns settings without touching the environment (tests).
func Default() *Settings {
	return &Settings{
		JiraUserAgent: "NeonLanes/0.1 (local)",
		SyncPageSize:  50,
		SyncMaxPages:  200,
	}
}
