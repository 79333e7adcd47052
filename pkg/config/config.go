package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Graph struct {
		TenantID             string   `yaml:"tenant_id"`
		ClientID             string   `yaml:"client_id"`
		ClientSecret         string   `yaml:"client_secret"`
		SiteDomain           string   `yaml:"site_domain"`
		SiteName             string   `yaml:"site_name"`
		FolderPath           string   `yaml:"folder_path"`
		RateLimit            float64  `yaml:"rate_limit"`
		FileFormats          []string `yaml:"file_formats"`
		ModifiedSinceMinutes int      `yaml:"modified_since_minutes"`
	} `yaml:"graph"`

	Embedding struct {
		Endpoint     string `yaml:"endpoint"`
		APIKey       string `yaml:"api_key"`
		Deployment   string `yaml:"deployment"`
		Model        string `yaml:"model"`
		APIVersion   string `yaml:"api_version"`
		MaxRetries   int    `yaml:"max_retries"`
		RetryDelayMS int    `yaml:"retry_delay_ms"`
	} `yaml:"embedding"`

	Index struct {
		Backend    string `yaml:"backend"`
		Endpoint   string `yaml:"endpoint"`
		APIKey     string `yaml:"api_key"`
		IndexName  string `yaml:"index_name"`
		BatchSize  int    `yaml:"batch_size"`
		APIVersion string `yaml:"api_version"`

		// Postgres backend only.
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
		VectorDim   int    `yaml:"vector_dim"`
	} `yaml:"index"`

	Processor struct {
		ChunkSize      int `yaml:"chunk_size"`
		ChunkOverlap   int `yaml:"chunk_overlap"`
		MinChunkLength int `yaml:"min_chunk_length"`
	} `yaml:"processor"`

	Security struct {
		GroupMapping map[string]string `yaml:"group_mapping"`
		DefaultGroup string            `yaml:"default_group"`
	} `yaml:"security"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// A .env alongside the binary overrides nothing, it only fills gaps.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/spindex/config.yaml"),
			"/etc/spindex/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Graph.RateLimit == 0 {
		config.Graph.RateLimit = 4.0
	}
	if len(config.Graph.FileFormats) == 0 {
		config.Graph.FileFormats = []string{"docx", "pdf", "txt"}
	}

	if config.Embedding.Model == "" {
		config.Embedding.Model = "text-embedding-ada-002"
	}
	if config.Embedding.Deployment == "" {
		config.Embedding.Deployment = config.Embedding.Model
	}
	if config.Embedding.APIVersion == "" {
		config.Embedding.APIVersion = "2023-05-15"
	}
	if config.Embedding.MaxRetries == 0 {
		config.Embedding.MaxRetries = 5
	}
	if config.Embedding.RetryDelayMS == 0 {
		config.Embedding.RetryDelayMS = 500
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "search"
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 100
	}
	if config.Index.APIVersion == "" {
		config.Index.APIVersion = "2023-11-01"
	}
	if config.Index.IndexName == "" {
		config.Index.IndexName = "sharepoint-chunks"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "chunks"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 1536
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 100
	}

	if config.Security.DefaultGroup == "" {
		config.Security.DefaultGroup = "Group_medium"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("TENANT_ID"); v != "" {
		config.Graph.TenantID = v
	}
	if v := os.Getenv("CLIENT_ID"); v != "" {
		config.Graph.ClientID = v
	}
	if v := os.Getenv("CLIENT_SECRET"); v != "" {
		config.Graph.ClientSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_ENDPOINT"); v != "" {
		config.Embedding.Endpoint = v
	}
	if v := os.Getenv("AZURE_OPENAI_API_VERSION"); v != "" {
		config.Embedding.APIVersion = v
	}
	if v := os.Getenv("AZURE_SEARCH_SERVICE_ENDPOINT"); v != "" {
		config.Index.Endpoint = v
	}
	if v := os.Getenv("AZURE_SEARCH_ADMIN_KEY"); v != "" {
		config.Index.APIKey = v
	}
	if v := os.Getenv("AZURE_SEARCH_INDEX_NAME"); v != "" {
		config.Index.IndexName = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Index.DatabaseURL = v
	}
}
