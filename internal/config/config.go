package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DataDir  string
	Port     int
	LogLevel string
	APIKey   string
	// Inference
	OllamaBaseURL    string
	InferenceModel   string
	InferenceTimeout time.Duration
	// Transcription
	TranscribeURL     string
	TranscribeAPIKey  string
	TranscribeModel   string
	TranscribeTimeout time.Duration
	// Capture
	ChunkDuration time.Duration
	RecordCommand string
	KeepAudio     bool
	// Knowledge
	SynthesisThreshold int
	// Tasks
	SkillDirs        []string
	RulesPath        string
	AgentCommand     string
	AnthropicAPIKey  string
	ClaudeOAuthToken string
	AutoRunTasks     bool
	TaskPollInterval time.Duration
	// Notifications
	SpeakCommand string
}

// Load reads configuration from the environment after applying any .env
// file in the working directory.
func Load() (*Config, error) {
	loadDotEnv(".env")

	dataDir := envStr("AUTOCLAWD_DATA_DIR", defaultDataDir())
	cfg := &Config{
		DataDir:            dataDir,
		Port:               envInt("AUTOCLAWD_PORT", 8742),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		APIKey:             envStr("API_KEY", ""),
		OllamaBaseURL:      envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		InferenceModel:     envStr("INFERENCE_MODEL", "llama3.2"),
		InferenceTimeout:   envDuration("INFERENCE_TIMEOUT", 90*time.Second),
		TranscribeURL:      envStr("TRANSCRIBE_URL", "http://localhost:8000"),
		TranscribeAPIKey:   envStr("TRANSCRIBE_API_KEY", ""),
		TranscribeModel:    envStr("TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeTimeout:  envDuration("TRANSCRIBE_TIMEOUT", 60*time.Second),
		ChunkDuration:      envDuration("CHUNK_DURATION", 30*time.Second),
		RecordCommand:      envStr("RECORD_COMMAND", "rec -q -c 1 -r 16000 -b 16"),
		KeepAudio:          envBool("KEEP_AUDIO", false),
		SynthesisThreshold: envInt("SYNTHESIS_THRESHOLD", 10),
		SkillDirs:          envSkillDirs("SKILL_DIRS"),
		RulesPath:          envStr("RULES_PATH", filepath.Join(dataDir, "rules.yaml")),
		AgentCommand:       envStr("AGENT_COMMAND", "claude"),
		AnthropicAPIKey:    envStr("ANTHROPIC_API_KEY", ""),
		ClaudeOAuthToken:   envStr("CLAUDE_CODE_OAUTH_TOKEN", ""),
		AutoRunTasks:       envBool("AUTO_RUN_TASKS", true),
		TaskPollInterval:   envDuration("TASK_POLL_INTERVAL", 30*time.Second),
		SpeakCommand:       envStr("SPEAK_COMMAND", "say"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("AUTOCLAWD_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("AUTOCLAWD_DATA_DIR must not be empty")
	}
	if c.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}
	if c.TranscribeTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be positive, got %s", c.TranscribeTimeout)
	}
	if c.ChunkDuration < 5*time.Second {
		return fmt.Errorf("CHUNK_DURATION must be at least 5s, got %s", c.ChunkDuration)
	}
	if c.SynthesisThreshold < 0 {
		return fmt.Errorf("SYNTHESIS_THRESHOLD must not be negative, got %d", c.SynthesisThreshold)
	}
	if c.TaskPollInterval <= 0 {
		return fmt.Errorf("TASK_POLL_INTERVAL must be positive, got %s", c.TaskPollInterval)
	}
	return nil
}

func (c *Config) KnowledgeDBPath() string { return filepath.Join(c.DataDir, "knowledge.db") }
func (c *Config) PipelineDBPath() string  { return filepath.Join(c.DataDir, "pipeline.db") }
func (c *Config) ProjectsDBPath() string  { return filepath.Join(c.DataDir, "projects.db") }
func (c *Config) DocumentsDir() string    { return c.DataDir }
func (c *Config) ChunkDir() string        { return filepath.Join(c.DataDir, "chunks") }

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoclawd"
	}
	return filepath.Join(home, ".autoclawd")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "2m") or bare seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envSkillDirs(key string) []string {
	if v := os.Getenv(key); v != "" {
		var dirs []string
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				dirs = append(dirs, p)
			}
		}
		if len(dirs) > 0 {
			return dirs
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".claude", "skills")}
}

// loadDotEnv sets variables from a KEY=value file without overriding the
// real environment.
func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, strings.Trim(strings.TrimSpace(value), `"'`))
	}
}
