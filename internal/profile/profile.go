package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server. It is constructed once
// at startup from environment variables; missing optional settings disable
// the subsystem that needs them instead of failing start.
type Profile struct {
	Mode   string
	Addr   string
	Port   int
	Data   string
	Driver string
	DSN    string

	// Cache (optional). Empty RedisAddr disables the cache service.
	RedisAddr     string
	RedisPassword string

	// MTProto userbot session.
	TelegramAPIID       int
	TelegramAPIHash     string
	TelegramPhone       string
	TelegramSessionFile string
	TelegramProxy       string

	// REST gateway auth: ordered key list, each optionally bound to a user id.
	APIKeys      []APIKey
	AllowedUsers []int32

	// Monitor configuration.
	SourceChannels    []string
	TargetChannel     string
	Keywords          []string
	FromUsers         []string
	RateLimitMS       int
	MonitorAutoStart  bool
	MonitorAIAnalysis bool
	DigestCron        string
	DigestLimit       int

	// LLM providers: provider id -> API key.
	ProviderKeys map[string]string
	AIProvider   string
	AIModel      string

	// GitHub export collaborator.
	GitHubToken  string
	GitHubRepo   string
	GitHubBranch string

	// Outbound notifications.
	WebhookURL  string
	BotToken    string
	AdminChatID int64

	Version string
}

// APIKey binds a bearer key to the user id it authenticates as.
type APIKey struct {
	Key    string
	UserID int32
}

// aiProviderDefaults maps a provider id to its default model. Used when
// AI_MODEL is not explicitly set.
var aiProviderDefaults = map[string]string{
	"groq":   "llama-3.3-70b-versatile",
	"gemini": "gemini-2.5-flash",
	"openai": "gpt-4o-mini",
	"claude": "claude-sonnet-4-5",
	"nvidia": "meta/llama-3.3-70b-instruct",
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIConfigured returns true if at least one provider API key is present.
func (p *Profile) IsAIConfigured() bool {
	for _, key := range p.ProviderKeys {
		if key != "" {
			return true
		}
	}
	return false
}

// IsTelegramConfigured returns true if the MTProto session credentials are present.
func (p *Profile) IsTelegramConfigured() bool {
	return p.TelegramAPIID != 0 && p.TelegramAPIHash != ""
}

// LookupAPIKey resolves a bearer key to its bound user id.
func (p *Profile) LookupAPIKey(key string) (int32, bool) {
	if key == "" {
		return 0, false
	}
	for _, k := range p.APIKeys {
		if k.Key == key {
			return k.UserID, true
		}
	}
	return 0, false
}

// EligibleUsers returns the union of API-key-bound user ids and ALLOWED_USERS,
// preserving first-seen order.
func (p *Profile) EligibleUsers() []int32 {
	seen := make(map[int32]bool, len(p.APIKeys)+len(p.AllowedUsers))
	users := make([]int32, 0, len(p.APIKeys)+len(p.AllowedUsers))
	for _, k := range p.APIKeys {
		if !seen[k.UserID] {
			seen[k.UserID] = true
			users = append(users, k.UserID)
		}
	}
	for _, id := range p.AllowedUsers {
		if !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	return users
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
// Invalid values are reported and fall back.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer environment variable, using default",
			slog.String("key", key), slog.String("value", value), slog.Int("default", defaultValue))
		return defaultValue
	}
	return intVal
}

// getEnvOrDefaultBool returns environment variable value as bool or default value.
// Invalid values are reported and fall back.
func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean environment variable, using default",
			slog.String("key", key), slog.String("value", value), slog.Bool("default", defaultValue))
		return defaultValue
	}
	return boolVal
}

// splitList splits a comma-separated environment value into trimmed non-empty entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseAPIKeys parses the API_KEYS value, a comma-separated list of entries in
// either "key" or "key:userId" form. Keys without an explicit user id bind to
// their 1-based position in the list.
func ParseAPIKeys(value string) []APIKey {
	entries := splitList(value)
	keys := make([]APIKey, 0, len(entries))
	for i, entry := range entries {
		key, idPart, found := strings.Cut(entry, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		userID := int32(i + 1)
		if found {
			parsed, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 32)
			if err != nil || parsed <= 0 {
				slog.Warn("invalid user id in API_KEYS entry, using key position",
					slog.Int("position", i+1), slog.String("value", idPart))
			} else {
				userID = int32(parsed)
			}
		}
		keys = append(keys, APIKey{Key: key, UserID: userID})
	}
	return keys
}

func parseUserIDs(value string) []int32 {
	entries := splitList(value)
	ids := make([]int32, 0, len(entries))
	for _, entry := range entries {
		parsed, err := strconv.ParseInt(entry, 10, 32)
		if err != nil || parsed <= 0 {
			slog.Warn("invalid user id in ALLOWED_USERS, skipping", slog.String("value", entry))
			continue
		}
		ids = append(ids, int32(parsed))
	}
	return ids
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.RedisAddr = getEnvOrDefault("REDIS_ADDR", "")
	p.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")

	p.TelegramAPIID = getEnvOrDefaultInt("TELEGRAM_API_ID", 0)
	p.TelegramAPIHash = getEnvOrDefault("TELEGRAM_API_HASH", "")
	p.TelegramPhone = getEnvOrDefault("TELEGRAM_PHONE", "")
	p.TelegramSessionFile = getEnvOrDefault("TELEGRAM_SESSION_FILE", "")
	p.TelegramProxy = getEnvOrDefault("TELEGRAM_PROXY", "")

	p.APIKeys = ParseAPIKeys(getEnvOrDefault("API_KEYS", ""))
	p.AllowedUsers = parseUserIDs(getEnvOrDefault("ALLOWED_USERS", ""))

	p.SourceChannels = splitList(getEnvOrDefault("SOURCE_CHANNELS", ""))
	p.TargetChannel = getEnvOrDefault("TARGET_CHANNEL", "")
	p.Keywords = splitList(strings.ToLower(getEnvOrDefault("KEYWORDS", "")))
	p.FromUsers = splitList(getEnvOrDefault("FROM_USERS", ""))
	p.RateLimitMS = getEnvOrDefaultInt("RATE_LIMIT_MS", 1000)
	p.MonitorAutoStart = getEnvOrDefaultBool("MONITOR_AUTO_START", false)
	p.MonitorAIAnalysis = getEnvOrDefaultBool("MONITOR_AI_ANALYSIS", false)
	p.DigestCron = getEnvOrDefault("DIGEST_CRON", "")
	p.DigestLimit = getEnvOrDefaultInt("DIGEST_LIMIT", 20)

	p.ProviderKeys = map[string]string{
		"groq":   getEnvOrDefault("GROQ_API_KEY", ""),
		"gemini": getEnvOrDefault("GEMINI_API_KEY", ""),
		"openai": getEnvOrDefault("OPENAI_API_KEY", ""),
		"claude": getEnvOrDefault("ANTHROPIC_API_KEY", ""),
		"nvidia": getEnvOrDefault("NVIDIA_API_KEY", ""),
	}
	p.AIProvider = getEnvOrDefault("AI_PROVIDER", "groq")
	if _, ok := aiProviderDefaults[p.AIProvider]; !ok {
		slog.Warn("unknown AI provider, using default: groq", slog.String("provider", p.AIProvider))
		p.AIProvider = "groq"
	}
	p.AIModel = getEnvOrDefault("AI_MODEL", "")
	if p.AIModel == "" {
		p.AIModel = aiProviderDefaults[p.AIProvider]
	}

	p.GitHubToken = getEnvOrDefault("GITHUB_TOKEN", "")
	p.GitHubRepo = getEnvOrDefault("GITHUB_REPO", "")
	p.GitHubBranch = getEnvOrDefault("GITHUB_BRANCH", "main")

	p.WebhookURL = getEnvOrDefault("WEBHOOK_URL", "")
	p.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", "")
	p.AdminChatID = int64(getEnvOrDefaultInt("ADMIN_CHAT_ID", 0))
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "channelwatch")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/channelwatch"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("channelwatch_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.TelegramSessionFile == "" {
		p.TelegramSessionFile = filepath.Join(dataDir, "telegram.session")
	}

	if p.RateLimitMS < 0 {
		slog.Warn("negative RATE_LIMIT_MS, using default", slog.Int("value", p.RateLimitMS))
		p.RateLimitMS = 1000
	}
	if p.DigestLimit <= 0 || p.DigestLimit > 20 {
		p.DigestLimit = 20
	}

	return nil
}
