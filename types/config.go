package types

import "time"

type LocalConfig struct {
	Path    string `yaml:"path"`
	TempDir string `yaml:"temp_dir"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Format   string        `yaml:"format"`
	TTL      time.Duration `yaml:"ttl"`
	TempDir  string        `yaml:"temp_dir"`
}

func (c RedisConfig) Enabled() bool {
	return c.URL != "" || c.Addr != ""
}

type ObjectStoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UseSSL          bool   `yaml:"use_ssl"`
	Prefix          string `yaml:"prefix"`
	TempDir         string `yaml:"temp_dir"`
}

func (c ObjectStoreConfig) Enabled() bool {
	return c.Bucket != ""
}

type Config struct {
	UserID      string            `yaml:"user_id"`
	Local       LocalConfig       `yaml:"local"`
	Redis       RedisConfig       `yaml:"redis"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}
