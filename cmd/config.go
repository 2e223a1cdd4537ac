package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rangelog"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage rangelog configuration: who you shoot as, when an
abandoned session counts as stale, and how the API server and its session
lock are set up.

Running bare 'rangelog config' is the same as 'rangelog config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml with the current values and comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration by section, with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configuration can run sessions and the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configCheckRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate renders config.yaml. Secrets are never written; they belong
// in the environment.
const configTemplate = `# rangelog configuration
# Effective values and their sources: rangelog config show

# Where the session database lives (default: ~/.config/rangelog)
# state_dir: {{ .StateDir }}
# db_path: {{ .DBPath }}

# The shooter the CLI and MCP server act for. API callers identify
# themselves with a bearer token instead (rangelog token).
owner_id: "{{ .OwnerID }}"
team_id: "{{ .TeamID }}"

session:
  # Starting a session ends any other active one you own. If that session
  # started longer ago than this, it is treated as abandoned: cancelled,
  # never evaluated against its drill.
  stale_after: {{ .StaleAfter }}

api:
  port: {{ .APIPort }}

auth:
  # Tokens are HS256-signed with RANGELOG_AUTH_JWT_SECRET.
  token_ttl: {{ .TokenTTL }}

redis:
  # When set, session starts are serialized per shooter across every
  # API instance sharing this Redis.
  addr: "{{ .RedisAddr }}"
  # How long a crashed instance can hold a shooter's lock.
  lock_ttl: {{ .LockTTL }}

anthropic:
  # Model for session debriefs (key via ANTHROPIC_API_KEY).
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	OwnerID        string
	TeamID         string
	StaleAfter     time.Duration
	APIPort        int
	TokenTTL       time.Duration
	RedisAddr      string
	LockTTL        time.Duration
	AnthropicModel string
}

// configKey describes a config key for display purposes.
type configKey struct {
	Section string
	Key     string
	Secret  bool
}

var configKeys = []configKey{
	{Section: "Storage", Key: "state_dir"},
	{Section: "Storage", Key: "db_path"},
	{Section: "Shooter", Key: "owner_id"},
	{Section: "Shooter", Key: "team_id"},
	{Section: "Sessions", Key: "session.stale_after"},
	{Section: "API server", Key: "api.port"},
	{Section: "API server", Key: "auth.jwt_secret", Secret: true},
	{Section: "API server", Key: "auth.token_ttl"},
	{Section: "Session lock", Key: "redis.addr"},
	{Section: "Session lock", Key: "redis.password", Secret: true},
	{Section: "Session lock", Key: "redis.lock_ttl"},
	{Section: "Debrief", Key: "anthropic.api_key", Secret: true},
	{Section: "Debrief", Key: "anthropic.model"},
}

// envVarFor returns the environment variable viper maps onto key.
func envVarFor(key string) string {
	return "RANGELOG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func renderConfig() ([]byte, error) {
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		OwnerID:        viper.GetString("owner_id"),
		TeamID:         viper.GetString("team_id"),
		StaleAfter:     viper.GetDuration("session.stale_after"),
		APIPort:        viper.GetInt("api.port"),
		TokenTTL:       viper.GetDuration("auth.token_ttl"),
		RedisAddr:      viper.GetString("redis.addr"),
		LockTTL:        viper.GetDuration("redis.lock_ttl"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}
	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return buf.Bytes(), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	content, err := renderConfig()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintf(ui.Out, "\n%s", content)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	if viper.GetString("owner_id") == "" {
		ui.Info("Set owner_id before starting sessions: rangelog config edit")
	}
	return nil
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}

	fileValues := readConfigFileValues(cfgPath)
	section := ""
	for _, k := range configKeys {
		if k.Section != section {
			section = k.Section
			fmt.Fprintf(ui.Out, "\n%s\n", section)
		}
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = "********"
		}
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, detectSource(k.Key, envVarFor(k.Key), fileValues))
	}
	return nil
}

// configProblems lists settings that would break sessions or the API.
// Missing optional integrations are not problems.
func configProblems() []string {
	var problems []string
	if viper.GetString("owner_id") == "" {
		problems = append(problems, "owner_id is empty: CLI and MCP sessions have no shooter")
	}
	if d := viper.GetDuration("session.stale_after"); d <= 0 {
		problems = append(problems, fmt.Sprintf("session.stale_after must be positive, got %s", d))
	}
	if p := viper.GetInt("api.port"); p <= 0 || p > 65535 {
		problems = append(problems, fmt.Sprintf("api.port %d is not a valid port", p))
	}
	if d := viper.GetDuration("auth.token_ttl"); d <= 0 {
		problems = append(problems, fmt.Sprintf("auth.token_ttl must be positive, got %s", d))
	}
	if secret := viper.GetString("auth.jwt_secret"); secret != "" && len(secret) < 32 {
		problems = append(problems, "auth.jwt_secret is shorter than 32 bytes")
	}
	if viper.GetString("redis.addr") != "" && viper.GetDuration("redis.lock_ttl") < time.Second {
		problems = append(problems, "redis.lock_ttl must be at least 1s")
	}
	return problems
}

func configCheckRun() error {
	problems := configProblems()
	for _, p := range problems {
		ui.Error("%s", p)
	}
	if len(problems) > 0 {
		return errors.New("configuration has problems")
	}
	ui.Success("Configuration OK")
	if viper.GetString("auth.jwt_secret") == "" {
		ui.Info("auth.jwt_secret not set: 'rangelog serve' will refuse to start")
	}
	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'rangelog config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
