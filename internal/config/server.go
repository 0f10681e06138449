package config

// CacheConfig configures the key-value session cache.
type CacheConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory
	Path   string `yaml:"path"`
}

// ServerConfig configures the local HTTP trigger surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}
