package config

// LLMConfig configures the LLM provider the skill Installer's review step
// consults (the Planner does not use it). TITAN treats the LLM as an
// external collaborator (spec §1); this struct only carries the shape a
// concrete provider adapter needs, never a vendored client.
type LLMConfig struct {
	// Provider selects the adapter. llm.New accepts "fake" (deterministic,
	// used in tests) or an empty value; any other name, "anthropic",
	// "openai" and "gemini" included, yields a NotImplemented error.
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
	Timeout  string `toml:"timeout"`
}
