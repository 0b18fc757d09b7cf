package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultEnvFile = ".env"

const (
	KeyOpenAIEndpoint      = "AZURE_OPENAI_ENDPOINT"
	KeyOpenAIAPIVersion    = "AZURE_OPENAI_API_VERSION"
	KeyOpenAIAPIKey        = "AZURE_OPENAI_API_KEY"
	KeyOpenAIWhisperDeploy = "AZURE_OPENAI_WHISPER_DEPLOYMENT"
	KeyOpenAIAudioDeploy   = "AZURE_OPENAI_AUDIO_DEPLOYMENT"
	KeySpeechEndpoint      = "AZURE_SPEECH_ENDPOINT"
	KeySpeechAPIVersion    = "AZURE_SPEECH_API_VERSION"
	KeySpeechKey           = "AZURE_AI_FOUNDRY_KEY"
	KeySpeechLocale        = "SPEECH_LOCALE"
	KeySpeechModelURL      = "SPEECH_MODEL_URL"
	KeyStorageSASURL       = "STORAGE_BLOB_SAS"
	KeyStorageContainer    = "STORAGE_CONTAINER_NAME"
	KeyStorageAccountName  = "STORAGE_NAME"
	KeyStorageAccountKey   = "STORAGE_KEY"
	KeyChunkLengthSeconds  = "CHUNK_LENGTH_SECONDS"
	KeyOutputDir           = "OUTPUT_DIR"
)

var keys = []string{
	KeyOpenAIEndpoint, KeyOpenAIAPIVersion, KeyOpenAIAPIKey, KeyOpenAIWhisperDeploy, KeyOpenAIAudioDeploy,
	KeySpeechEndpoint, KeySpeechAPIVersion, KeySpeechKey, KeySpeechLocale, KeySpeechModelURL,
	KeyStorageSASURL, KeyStorageContainer, KeyStorageAccountName, KeyStorageAccountKey,
	KeyChunkLengthSeconds, KeyOutputDir,
}

var ErrMissing = errors.New("missing configuration")

type OpenAI struct {
	Endpoint          string
	APIVersion        string
	APIKey            string
	WhisperDeployment string
	AudioDeployment   string
}

type Speech struct {
	Endpoint   string
	APIVersion string
	Key        string
	Locale     string
	ModelURL   string
}

type Storage struct {
	SASURL      string
	Container   string
	AccountName string
	AccountKey  string
}

type Config struct {
	OpenAI             OpenAI
	Speech             Speech
	Storage            Storage
	ChunkLengthSeconds float64
	OutputDir          string
	// EnvFiles lists the env files that were read, in order.
	EnvFiles []string
}

// Load resolves configuration from defaults, env files and the process
// environment, in increasing order of precedence. DefaultEnvFile is read when
// present; every path in envFiles must exist. Later files win over earlier
// ones. The process environment is never modified.
func Load(envFiles ...string) (Config, error) {
	v := viper.New()
	v.SetDefault(KeyOpenAIWhisperDeploy, "whisper")
	v.SetDefault(KeyOpenAIAudioDeploy, "gpt-4o-audio-preview")
	v.SetDefault(KeySpeechAPIVersion, "2024-11-15")
	v.SetDefault(KeySpeechLocale, "en-AU")
	v.SetDefault(KeyChunkLengthSeconds, 30)
	v.SetDefault(KeyOutputDir, "transcripts")

	var files []string
	if _, err := os.Stat(DefaultEnvFile); err == nil {
		files = append(files, DefaultEnvFile)
	}
	files = append(files, envFiles...)

	for _, path := range files {
		values, err := godotenv.Read(path)
		if err != nil {
			return Config{}, fmt.Errorf("read env file %s: %w", path, err)
		}
		for key, value := range values {
			v.SetDefault(key, value)
		}
	}

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := Config{
		OpenAI: OpenAI{
			Endpoint:          v.GetString(KeyOpenAIEndpoint),
			APIVersion:        v.GetString(KeyOpenAIAPIVersion),
			APIKey:            v.GetString(KeyOpenAIAPIKey),
			WhisperDeployment: v.GetString(KeyOpenAIWhisperDeploy),
			AudioDeployment:   v.GetString(KeyOpenAIAudioDeploy),
		},
		Speech: Speech{
			Endpoint:   v.GetString(KeySpeechEndpoint),
			APIVersion: v.GetString(KeySpeechAPIVersion),
			Key:        v.GetString(KeySpeechKey),
			Locale:     v.GetString(KeySpeechLocale),
			ModelURL:   v.GetString(KeySpeechModelURL),
		},
		Storage: Storage{
			SASURL:      v.GetString(KeyStorageSASURL),
			Container:   v.GetString(KeyStorageContainer),
			AccountName: v.GetString(KeyStorageAccountName),
			AccountKey:  v.GetString(KeyStorageAccountKey),
		},
		ChunkLengthSeconds: v.GetFloat64(KeyChunkLengthSeconds),
		OutputDir:          v.GetString(KeyOutputDir),
		EnvFiles:           files,
	}
	if cfg.ChunkLengthSeconds <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %q", KeyChunkLengthSeconds, v.GetString(KeyChunkLengthSeconds))
	}
	return cfg, nil
}

// RequireOpenAI reports the missing settings needed by the whisper and
// chunked pipelines.
func (c Config) RequireOpenAI() error {
	return requireValues(map[string]string{
		KeyOpenAIEndpoint: c.OpenAI.Endpoint,
		KeyOpenAIAPIKey:   c.OpenAI.APIKey,
	})
}

func (c Config) RequireSpeech() error {
	return requireValues(map[string]string{
		KeySpeechEndpoint: c.Speech.Endpoint,
		KeySpeechKey:      c.Speech.Key,
	})
}

func (c Config) RequireStorage() error {
	return requireValues(map[string]string{
		KeyStorageSASURL:      c.Storage.SASURL,
		KeyStorageContainer:   c.Storage.Container,
		KeyStorageAccountName: c.Storage.AccountName,
		KeyStorageAccountKey:  c.Storage.AccountKey,
	})
}

func requireValues(values map[string]string) error {
	var missing []string
	for _, key := range keys {
		if value, ok := values[key]; ok && strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: set %s", ErrMissing, strings.Join(missing, ", "))
}
