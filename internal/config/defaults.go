package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/bunmyaku/data"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/bunmyaku/data/db/resources.db"
	}
	if len(cfg.Index.Scopes) == 0 {
		cfg.Index.Scopes = map[string]string{"default": "indices/default.jsonl"}
	}
	if cfg.Window.ReservedOutputTokens == 0 {
		cfg.Window.ReservedOutputTokens = 4096
	}
	if cfg.Experience.PerScopeLimit == 0 {
		cfg.Experience.PerScopeLimit = 10
	}
	if cfg.Experience.Limit == 0 {
		cfg.Experience.Limit = 5
	}
	if cfg.Experience.MaxTokens == 0 {
		cfg.Experience.MaxTokens = 1000
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Index.Dimensions == 0 {
		cfg.Index.Dimensions = cfg.Embedding.Dimensions
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
}
