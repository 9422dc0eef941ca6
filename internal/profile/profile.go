// Package profile holds the runtime configuration of the offkai bot.
package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Required config.json keys. Unknown keys are ignored; missing required keys
// are fatal at startup.
const (
	keyBotToken      = "DISCORD_TOKEN"
	keyEventsFile    = "EVENTS_FILE"
	keyResponsesFile = "RESPONSES_FILE"
	keyWaitlistFile  = "WAITLIST_FILE"
	keyGuilds        = "GUILDS"
)

// Profile is the configuration to start the bot process.
type Profile struct {
	// Mode is "prod", "dev" or "demo".
	Mode string
	// ConfigFile is the path to config.json.
	ConfigFile string
	// Data is the directory relative file paths are resolved against.
	Data string
	// Version is the running build version.
	Version string

	// BotToken authenticates against the chat platform.
	BotToken string
	// EventsFile and ResponsesFile back the two JSON caches. WaitlistFile is
	// the legacy sibling file consulted during responses migration.
	EventsFile    string
	ResponsesFile string
	WaitlistFile  string
	// Guilds lists the chat-platform guild/workspace IDs the bot serves.
	Guilds []int64
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// LoadConfig reads config.json into the profile. Env vars prefixed OFFKAI_
// override file values (OFFKAI_DISCORD_TOKEN and friends).
func (p *Profile) LoadConfig() error {
	v := viper.New()
	v.SetConfigFile(p.ConfigFile)
	v.SetConfigType("json")
	v.SetEnvPrefix("offkai")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "unable to read config file %s", p.ConfigFile)
		}
		slog.Warn("profile: config file not found, relying on environment", "file", p.ConfigFile)
	}

	p.BotToken = v.GetString(keyBotToken)
	p.EventsFile = v.GetString(keyEventsFile)
	p.ResponsesFile = v.GetString(keyResponsesFile)
	p.WaitlistFile = v.GetString(keyWaitlistFile)
	for _, id := range v.GetIntSlice(keyGuilds) {
		p.Guilds = append(p.Guilds, int64(id))
	}
	return nil
}

// Validate checks required keys and resolves file paths against the data
// directory. Missing required keys are fatal.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.BotToken == "" {
		return errors.Errorf("missing required config key %s", keyBotToken)
	}
	if p.EventsFile == "" {
		return errors.Errorf("missing required config key %s", keyEventsFile)
	}
	if p.ResponsesFile == "" {
		return errors.Errorf("missing required config key %s", keyResponsesFile)
	}
	if p.WaitlistFile == "" {
		return errors.Errorf("missing required config key %s", keyWaitlistFile)
	}
	if len(p.Guilds) == 0 {
		return errors.Errorf("missing required config key %s", keyGuilds)
	}

	if p.Data != "" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		p.EventsFile = resolvePath(p.Data, p.EventsFile)
		p.ResponsesFile = resolvePath(p.Data, p.ResponsesFile)
		p.WaitlistFile = resolvePath(p.Data, p.WaitlistFile)
	}
	return nil
}

func resolvePath(dataDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

func checkDataDir(dataDir string) (string, error) {
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}
