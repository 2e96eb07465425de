package models

// catalog is the production model list in picker order.
var catalog = []Descriptor{
	// Mini: available to everyone.
	{
		ID:              "scira-5-nano",
		Label:           "GPT 5 Nano",
		Description:     "OpenAI's latest flagship nano LLM (via OpenRouter)",
		Category:        CategoryMini,
		Tier:            TierFree,
		Vision:          true,
		Reasoning:       false,
		PDF:             true,
		MaxOutputTokens: 128000,
	},
	{
		ID:              "scira-google-lite",
		Label:           "Gemini 2.5 Flash Lite",
		Description:     "Google's advanced smallest LLM",
		Category:        CategoryMini,
		Tier:            TierFree,
		Vision:          true,
		Reasoning:       false,
		PDF:             true,
		MaxOutputTokens: 10000,
	},

	// Pro
	{
		ID:              "scira-default",
		Label:           "Grok 3 Mini",
		Description:     "xAI's most efficient reasoning LLM.",
		Category:        CategoryPro,
		Tier:            TierPro,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 16000,
	},
	{
		ID:              "scira-5-mini",
		Label:           "GPT 5 Mini",
		Description:     "OpenAI's latest flagship mini LLM (via OpenRouter)",
		Category:        CategoryPro,
		Tier:            TierPro,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 128000,
	},
	{
		ID:              "scira-google",
		Label:           "Gemini 2.5 Flash",
		Description:     "Google's advanced small LLM",
		Category:        CategoryPro,
		Tier:            TierPro,
		Vision:          true,
		Reasoning:       false,
		PDF:             true,
		MaxOutputTokens: 10000,
	},
	{
		ID:              "scira-kimi-k2-new",
		Label:           "Kimi K2",
		Description:     "MoonShot AI's advanced base LLM",
		Category:        CategoryPro,
		Tier:            TierPro,
		Vision:          true,
		Reasoning:       false,
		PDF:             true,
		MaxOutputTokens: 200000,
	},
	{
		ID:              "scira-glm-4-5v",
		Label:           "GLM 4.5V",
		Description:     "Zhipu AI's multimodal model with vision capabilities",
		Category:        CategoryPro,
		Tier:            TierPro,
		Vision:          true,
		Reasoning:       false,
		PDF:             true,
		MaxOutputTokens: 8000,
	},
	{
		ID:              "scira-deepseek-chat",
		Label:           "DeepSeek V3.1 Chat",
		Description:     "DeepSeek's advanced model",
		Category:        CategoryPro,
		Tier:            TierPro,
		Vision:          true,
		Reasoning:       false,
		PDF:             true,
		MaxOutputTokens: 8192,
	},

	// Ultra
	{
		ID:              "scira-grok-4",
		Label:           "Grok 4",
		Description:     "xAI's most intelligent vision LLM",
		Category:        CategoryUltra,
		Tier:            TierUltra,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 16000,
	},
	{
		ID:              "scira-5",
		Label:           "GPT 5",
		Description:     "OpenAI's latest flagship LLM (via OpenRouter)",
		Category:        CategoryUltra,
		Tier:            TierUltra,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 128000,
	},
	{
		ID:              "scira-anthropic",
		Label:           "Claude 4 Sonnet",
		Description:     "Anthropic's most advanced LLM",
		Category:        CategoryUltra,
		Tier:            TierUltra,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 8000,
	},
	{
		ID:              "scira-google-pro",
		Label:           "Gemini 2.5 Pro",
		Description:     "Google's most advanced LLM",
		Category:        CategoryUltra,
		Tier:            TierUltra,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 10000,
	},
	{
		ID:              "scira-deepseek-reasoner",
		Label:           "DeepSeek V3.1 Reasoner",
		Description:     "DeepSeek's reasoning model with advanced problem-solving capabilities",
		Category:        CategoryUltra,
		Tier:            TierUltra,
		Vision:          true,
		Reasoning:       true,
		PDF:             true,
		MaxOutputTokens: 8192,
	},
}
