package config

import (
	"github.com/netpilot-ai/assistant-core/internal/model"
)

// ModelCatalog describes the selectable models per provider. The lists
// come from environment variables so deployments can narrow or extend
// the catalog without a rebuild.
type ModelCatalog struct {
	DeepSeek  []string
	OpenAI    []string
	Anthropic []string
}

// LoadModelCatalog reads the per-provider model lists.
func LoadModelCatalog() ModelCatalog {
	return ModelCatalog{
		DeepSeek:  getListEnv("DEEPSEEK_MODELS", []string{"deepseek-chat", "deepseek-reasoner"}),
		OpenAI:    getListEnv("OPENAI_MODELS", []string{"gpt-4o", "gpt-4o-mini"}),
		Anthropic: getListEnv("ANTHROPIC_MODELS", []string{"claude-3-5-sonnet-20241022"}),
	}
}

// knownModels carries display metadata for the model identifiers the
// catalog may include. Unknown identifiers still work; they just get a
// generic label.
var knownModels = map[string]model.ModelInfo{
	"deepseek-chat": {
		Label:       "DeepSeek Chat",
		Description: "General-purpose assistant tuned for network troubleshooting dialogue",
		Features:    []string{"streaming"},
		MaxTokens:   8192,
	},
	"deepseek-reasoner": {
		Label:       "DeepSeek Reasoner",
		Description: "Shows intermediate reasoning before answering",
		Features:    []string{"streaming", "thinking"},
		MaxTokens:   8192,
	},
	"gpt-4o": {
		Label:       "GPT-4o",
		Description: "OpenAI flagship multimodal model",
		Features:    []string{"streaming"},
		MaxTokens:   16384,
	},
	"gpt-4o-mini": {
		Label:       "GPT-4o mini",
		Description: "Fast, low-cost OpenAI model",
		Features:    []string{"streaming"},
		MaxTokens:   16384,
	},
	"claude-3-5-sonnet-20241022": {
		Label:       "Claude 3.5 Sonnet",
		Description: "Anthropic model with strong diagnostic reasoning",
		Features:    []string{"streaming"},
		MaxTokens:   8192,
	},
}

// ModelInfos flattens the catalog into the registry's display entries.
func (c ModelCatalog) ModelInfos() []model.ModelInfo {
	var infos []model.ModelInfo
	for _, id := range append(append(append([]string{}, c.DeepSeek...), c.OpenAI...), c.Anthropic...) {
		info, ok := knownModels[id]
		if !ok {
			info = model.ModelInfo{
				Label:     id,
				Features:  []string{"streaming"},
				MaxTokens: 4096,
			}
		}
		info.Value = id
		infos = append(infos, info)
	}
	return infos
}
