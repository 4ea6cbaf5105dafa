package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected []APIKey
	}{
		{
			name:     "empty",
			value:    "",
			expected: []APIKey{},
		},
		{
			name:  "bare keys bind to position",
			value: "alpha,beta,gamma",
			expected: []APIKey{
				{Key: "alpha", UserID: 1},
				{Key: "beta", UserID: 2},
				{Key: "gamma", UserID: 3},
			},
		},
		{
			name:  "explicit user ids",
			value: "alpha:7,beta:42",
			expected: []APIKey{
				{Key: "alpha", UserID: 7},
				{Key: "beta", UserID: 42},
			},
		},
		{
			name:  "mixed forms",
			value: "alpha,beta:9",
			expected: []APIKey{
				{Key: "alpha", UserID: 1},
				{Key: "beta", UserID: 9},
			},
		},
		{
			name:  "invalid id falls back to position",
			value: "alpha:x,beta:-3",
			expected: []APIKey{
				{Key: "alpha", UserID: 1},
				{Key: "beta", UserID: 2},
			},
		},
		{
			name:  "whitespace tolerated",
			value: " alpha : 7 , beta ",
			expected: []APIKey{
				{Key: "alpha", UserID: 7},
				{Key: "beta", UserID: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAPIKeys(tt.value)
			require.Len(t, got, len(tt.expected))
			for i, want := range tt.expected {
				assert.Equal(t, want, got[i])
			}
		})
	}
}

func TestEligibleUsers(t *testing.T) {
	p := &Profile{
		APIKeys: []APIKey{
			{Key: "a", UserID: 1},
			{Key: "b", UserID: 2},
			{Key: "c", UserID: 2},
		},
		AllowedUsers: []int32{2, 5},
	}
	assert.Equal(t, []int32{1, 2, 5}, p.EligibleUsers())
}

func TestLookupAPIKey(t *testing.T) {
	p := &Profile{APIKeys: ParseAPIKeys("alpha:7,beta")}

	id, ok := p.LookupAPIKey("alpha")
	require.True(t, ok)
	assert.Equal(t, int32(7), id)

	id, ok = p.LookupAPIKey("beta")
	require.True(t, ok)
	assert.Equal(t, int32(2), id)

	_, ok = p.LookupAPIKey("unknown")
	assert.False(t, ok)

	_, ok = p.LookupAPIKey("")
	assert.False(t, ok)
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, 1000, p.RateLimitMS)
	assert.Equal(t, "groq", p.AIProvider)
	assert.Equal(t, "llama-3.3-70b-versatile", p.AIModel)
	assert.Equal(t, "main", p.GitHubBranch)
	assert.False(t, p.MonitorAutoStart)
	assert.Empty(t, p.SourceChannels)
	assert.False(t, p.IsAIConfigured())
	assert.False(t, p.IsTelegramConfigured())
}

func TestFromEnvTypedFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_MS", "not-a-number")
	t.Setenv("MONITOR_AUTO_START", "definitely")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, 1000, p.RateLimitMS)
	assert.False(t, p.MonitorAutoStart)
}

func TestFromEnvMonitorLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOURCE_CHANNELS", "@news, -1001234567890 ,@crypto")
	t.Setenv("KEYWORDS", "Bitcoin,ETH ,Solana")
	t.Setenv("FROM_USERS", "alice,42")
	t.Setenv("TARGET_CHANNEL", "@alerts")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, []string{"@news", "-1001234567890", "@crypto"}, p.SourceChannels)
	assert.Equal(t, []string{"bitcoin", "eth", "solana"}, p.Keywords, "keywords are lowercased")
	assert.Equal(t, []string{"alice", "42"}, p.FromUsers)
	assert.Equal(t, "@alerts", p.TargetChannel)
}

func TestFromEnvUnknownProviderFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "skynet")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "groq", p.AIProvider)
}

func TestIsAIConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	p := &Profile{}
	p.FromEnv()

	assert.True(t, p.IsAIConfigured())
	assert.Equal(t, "g-key", p.ProviderKeys["gemini"])
}

func TestValidateSQLiteDSN(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "sqlite",
	}
	require.NoError(t, p.Validate())
	assert.Contains(t, p.DSN, "channelwatch_dev.db")
	assert.NotEmpty(t, p.TelegramSessionFile)
}

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"REDIS_ADDR", "REDIS_PASSWORD",
		"TELEGRAM_API_ID", "TELEGRAM_API_HASH", "TELEGRAM_PHONE",
		"TELEGRAM_SESSION_FILE", "TELEGRAM_PROXY",
		"API_KEYS", "ALLOWED_USERS",
		"SOURCE_CHANNELS", "TARGET_CHANNEL", "KEYWORDS", "FROM_USERS",
		"RATE_LIMIT_MS", "MONITOR_AUTO_START", "MONITOR_AI_ANALYSIS",
		"DIGEST_CRON", "DIGEST_LIMIT",
		"GROQ_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"ANTHROPIC_API_KEY", "NVIDIA_API_KEY",
		"AI_PROVIDER", "AI_MODEL",
		"GITHUB_TOKEN", "GITHUB_REPO", "GITHUB_BRANCH",
		"WEBHOOK_URL", "TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}
