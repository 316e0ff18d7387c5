package models

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	GrpcHost string          `yaml:"grpc_host"`
	GrpcPort int             `yaml:"grpc_port"`
	Storage  MStorageConfig  `yaml:"storage"`
	Network  MNetworkConfig  `yaml:"network"`
	Engine   MEngineConfig   `yaml:"engine"`
	Sessions MSessionConfig  `yaml:"sessions"`
	Sources  []MSourceConfig `yaml:"sources"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // none, sqlite or postgres
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	RequestTimeout     int    `yaml:"timeout"`
	MaxRetries         int    `yaml:"retries"`
	ConcurrentRequests int    `yaml:"concurrent_requests"`
	UserAgent          string `yaml:"user_agent"`
	Proxy              string `yaml:"proxy"`
}

type MEngineConfig struct {
	MaxPoints       int    `yaml:"max_points"`
	DefaultFunction string `yaml:"default_function"`
}

type MSessionConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type MSourceConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"` // file, http or table
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
	Table  string `yaml:"table"` // schema.table.time_column.value_column
	Format string `yaml:"format"` // Optional, detected when empty
}
