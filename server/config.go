package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pkgradar/search"
)

// defaultGitHubClientID is the registered OAuth app used when none is
// configured.
const defaultGitHubClientID = "1050d5bcb642ab0beb2e"

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	APIURL       string `yaml:"api_url"`
}

type CookieConfig struct {
	Name     string `yaml:"name"`
	Secure   bool   `yaml:"secure"`
	SameSite string `yaml:"same_site"`
}

type Config struct {
	Addr          string        `yaml:"addr"`
	DatabaseURL   string        `yaml:"database_url"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	AuthRateLimit int           `yaml:"auth_rate_limit"`
	Cookie        CookieConfig  `yaml:"cookie"`
	GitHub        GitHubConfig  `yaml:"github"`
	Search        search.Config `yaml:"search"`
	S3            S3Config      `yaml:"s3"`
}

func defaultConfig() Config {
	return Config{
		Addr:          ":8080",
		DatabaseURL:   "postgres://postgres:postgres@db:5432/pkgradar?sslmode=disable",
		SessionTTL:    14 * 24 * time.Hour,
		AuthRateLimit: 30,
		Cookie:        CookieConfig{Name: "pkgradar_sess", SameSite: "lax"},
		GitHub: GitHubConfig{
			ClientID: defaultGitHubClientID,
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: "https://github.com/login/oauth/access_token",
			APIURL:   "https://api.github.com",
		},
		S3: S3Config{Region: "us-east-1"},
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// loadConfig layers defaults, the optional YAML file at path, then the
// environment. A missing file is only an error when path was given.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Addr = getenv("ADDR", c.Addr)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	if v := getenv("SESSION_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if v := getenv("AUTH_RATE_LIMIT", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTH_RATE_LIMIT: %w", err)
		}
		c.AuthRateLimit = n
	}
	c.Cookie.Name = getenv("SESSION_COOKIE_NAME", c.Cookie.Name)
	c.Cookie.Secure = getenv("COOKIE_SECURE", strconv.FormatBool(c.Cookie.Secure)) == "true"
	c.Cookie.SameSite = getenv("COOKIE_SAMESITE", c.Cookie.SameSite)

	c.GitHub.ClientID = getenv("OAUTH_GITHUB_CLIENT_ID", c.GitHub.ClientID)
	c.GitHub.ClientSecret = getenv("OAUTH_GITHUB_CLIENT_SECRET", c.GitHub.ClientSecret)
	c.GitHub.RedirectURL = getenv("OAUTH_GITHUB_REDIRECT_URL", c.GitHub.RedirectURL)

	c.Search.Endpoint = getenv("ELASTIC_SEARCH_ENDPOINT", c.Search.Endpoint)
	c.Search.Index = getenv("ELASTIC_SEARCH_INDEX", c.Search.Index)
	c.Search.Username = getenv("ELASTIC_SEARCH_USERNAME", c.Search.Username)
	c.Search.Password = getenv("ELASTIC_SEARCH_PASSWORD", c.Search.Password)
	c.Search.APIKey = getenv("ELASTIC_SEARCH_API_KEY", c.Search.APIKey)

	c.S3.Endpoint = getenv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Bucket = getenv("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getenv("S3_REGION", c.S3.Region)
	c.S3.AccessKey = getenv("S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = getenv("S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.Prefix = getenv("S3_PREFIX", c.S3.Prefix)
	c.S3.UsePathStyle = getenv("S3_USE_PATH_STYLE", strconv.FormatBool(c.S3.UsePathStyle)) == "true"
	return nil
}

func (c *Config) sameSite() http.SameSite {
	switch strings.ToLower(c.Cookie.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c *Config) githubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}
