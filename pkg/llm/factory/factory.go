package factory

import (
	"fmt"
	"time"

	"interview-copilot-be/internal/config"
	"interview-copilot-be/pkg/llm"
	"interview-copilot-be/pkg/llm/huggingface"
	"interview-copilot-be/pkg/llm/ollama"
)

func NewLLMProvider(cfg config.AIConfig) (llm.LLMProvider, error) {
	timeout := time.Duration(cfg.LLMTimeoutMs) * time.Millisecond
	switch cfg.LLMProvider {
	case "ollama", "":
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.LLMModel, timeout), nil
	case "huggingface":
		if cfg.HFApiKey == "" {
			return nil, fmt.Errorf("huggingface provider requires HUGGINGFACE_API_KEY")
		}
		return huggingface.NewHuggingFaceProvider(cfg.HFApiKey, cfg.HFBaseURL, cfg.LLMModel, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
