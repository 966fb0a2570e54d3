package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dermalink/derma-web-ui/internal/handlers"
	"github.com/dermalink/derma-web-ui/internal/platform"
	"github.com/dermalink/derma-web-ui/internal/services"
	"gopkg.in/yaml.v3"
)

type assistConfig interface {
	llm(client *platform.Client, systemPrompt string, logger *slog.Logger) (handlers.LLM, error)
	titleGen(client *platform.Client, systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error)
}

// BaseAssistConfig contains the common fields for all assist provider
// configurations.
type BaseAssistConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port                 string         `yaml:"port"`
	SystemPrompt         string         `yaml:"systemPrompt"`
	TitleGeneratorPrompt string         `yaml:"titleGeneratorPrompt"`
	Platform             platformConfig `yaml:"platform"`
	Assist               assistConfig   `yaml:"assist"`
}

type platformConfig struct {
	Endpoint     string `yaml:"endpoint"`
	SessionURL   string `yaml:"sessionUrl"`
	RefreshToken string `yaml:"refreshToken"`
	Token        string `yaml:"token"`
}

type platformAssistConfig struct {
	BaseAssistConfig `yaml:",inline"`
}

type openAIConfig struct {
	BaseAssistConfig `yaml:",inline"`
	APIKey           string `yaml:"apiKey"`
	BaseURL          string `yaml:"baseUrl"`
}

type ollamaConfig struct {
	BaseAssistConfig `yaml:",inline"`
	Host             string `yaml:"host"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port                 string         `yaml:"port"`
		SystemPrompt         string         `yaml:"systemPrompt"`
		TitleGeneratorPrompt string         `yaml:"titleGeneratorPrompt"`
		Platform             platformConfig `yaml:"platform"`
		Assist               map[string]any `yaml:"assist"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.SystemPrompt = rawConfig.SystemPrompt
	c.TitleGeneratorPrompt = rawConfig.TitleGeneratorPrompt
	c.Platform = rawConfig.Platform

	provider, _ := rawConfig.Assist["provider"].(string)
	if provider == "" {
		provider = "platform"
	}

	assistRawYAML, err := yaml.Marshal(rawConfig.Assist)
	if err != nil {
		return err
	}

	var assist assistConfig
	switch provider {
	case "platform":
		assist = &platformAssistConfig{}
	case "openai":
		assist = &openAIConfig{}
	case "ollama":
		assist = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown assist provider: %s", provider)
	}

	if err := yaml.Unmarshal(assistRawYAML, assist); err != nil {
		return err
	}

	c.Assist = assist

	return nil
}

func (platformAssistConfig) llm(client *platform.Client, systemPrompt string, logger *slog.Logger) (handlers.LLM, error) {
	if client == nil {
		return nil, fmt.Errorf("platform endpoint is required for the platform assist provider")
	}
	return services.NewAssist(client, systemPrompt, logger), nil
}

func (platformAssistConfig) titleGen(client *platform.Client, systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("platform endpoint is required for the platform assist provider")
	}
	return services.NewAssist(client, systemPrompt, logger), nil
}

func (o openAIConfig) newOpenAI(systemPrompt string, logger *slog.Logger) (services.OpenAI, error) {
	if o.Model == "" {
		return services.OpenAI{}, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, logger), nil
}

func (o openAIConfig) llm(_ *platform.Client, systemPrompt string, logger *slog.Logger) (handlers.LLM, error) {
	return o.newOpenAI(systemPrompt, logger)
}

func (o openAIConfig) titleGen(_ *platform.Client, systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error) {
	return o.newOpenAI(systemPrompt, logger)
}

func (o ollamaConfig) newOllama(systemPrompt string) (services.Ollama, error) {
	if o.Model == "" {
		return services.Ollama{}, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt), nil
}

func (o ollamaConfig) llm(_ *platform.Client, systemPrompt string, _ *slog.Logger) (handlers.LLM, error) {
	return o.newOllama(systemPrompt)
}

func (o ollamaConfig) titleGen(_ *platform.Client, systemPrompt string, _ *slog.Logger) (handlers.TitleGenerator, error) {
	return o.newOllama(systemPrompt)
}
