// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultDataDir        = "data"
	DefaultOpsAddr        = ":8090"
	DefaultSMTPPort       = 587
	DefaultMailTimeout    = 15 * time.Second
	DefaultMCSMTimeout    = 10 * time.Second
	DefaultPingTimeout    = 5 * time.Second
	DefaultCodeTTL        = 15 * time.Minute
	DefaultRecordTTL      = 365 * 24 * time.Hour
	DefaultReaperSchedule = "@daily"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Data       DataConfig       `toml:"data"`
	Discord    DiscordConfig    `toml:"discord"`
	Verify     VerifyConfig     `toml:"verify"`
	Mail       MailConfig       `toml:"mail"`
	MCSManager MCSManagerConfig `toml:"mcsmanager"`
	Minecraft  MinecraftConfig  `toml:"minecraft"`
	Reaper     ReaperConfig     `toml:"reaper"`
	Server     ServerConfig     `toml:"server"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DataConfig holds the directory for the JSON state files.
type DataConfig struct {
	Dir string `toml:"dir"`
}

// DiscordConfig holds the bot token, guild, and the role/channel IDs the
// workflows need.
type DiscordConfig struct {
	Token              string `toml:"token"`
	GuildID            string `toml:"guild_id"`
	WhitelistedRoleID  string `toml:"whitelisted_role_id"`
	ManagementRoleID   string `toml:"management_role_id"`
	GeneralChannelID   string `toml:"general_channel_id"`
	VerifyChannelID    string `toml:"verify_channel_id"`
	WhitelistChannelID string `toml:"whitelist_channel_id"`
}

// VerifyConfig maps allowed email domains to the role granted on
// verification, plus the challenge and record lifetimes.
type VerifyConfig struct {
	Domains   map[string]string `toml:"domains"`
	CodeTTL   duration          `toml:"code_ttl"`
	RecordTTL duration          `toml:"record_ttl"`
}

// MailConfig holds SMTP connection parameters and the sender address.
type MailConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	FromName string   `toml:"from_name"`
	Timeout  duration `toml:"timeout"`
}

// MCSManagerConfig holds the allow-list API endpoint and credentials.
type MCSManagerConfig struct {
	Host       string   `toml:"host"`
	APIKey     string   `toml:"api_key"`
	DaemonID   string   `toml:"daemon_id"`
	InstanceID string   `toml:"instance_id"`
	Timeout    duration `toml:"timeout"`
}

// MinecraftConfig holds the game server address for status queries.
type MinecraftConfig struct {
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
	Timeout duration `toml:"timeout"`
}

// ReaperConfig holds the cron pattern for the expiry sweep.
type ReaperConfig struct {
	Schedule string `toml:"schedule"`
}

// ServerConfig holds the ops HTTP listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// VerifiedRoleIDs returns the distinct role IDs reachable through the
// domain-to-role mapping.
func (c VerifyConfig) VerifiedRoleIDs() []string {
	seen := map[string]bool{}
	var ids []string
	for _, id := range c.Domains {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Data: DataConfig{
			Dir: DefaultDataDir,
		},
		Verify: VerifyConfig{
			CodeTTL:   duration(DefaultCodeTTL),
			RecordTTL: duration(DefaultRecordTTL),
		},
		Mail: MailConfig{
			Port:    DefaultSMTPPort,
			Timeout: duration(DefaultMailTimeout),
		},
		MCSManager: MCSManagerConfig{
			Timeout: duration(DefaultMCSMTimeout),
		},
		Minecraft: MinecraftConfig{
			Port:    25565,
			Timeout: duration(DefaultPingTimeout),
		},
		Reaper: ReaperConfig{
			Schedule: DefaultReaperSchedule,
		},
		Server: ServerConfig{
			Addr: DefaultOpsAddr,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// duration decodes TOML strings like "15m" or "8760h".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d duration) Std() time.Duration { return time.Duration(d) }
