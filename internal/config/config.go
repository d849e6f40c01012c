// Package config loads exporter configuration the same two-step way
// the teacher's LoadConfig/GetCredentials pair does: a defaults
// struct loaded via kovetskiy/ko from an optional YAML file, then
// environment variables and CLI flags layered on top in increasing
// priority.
package config

import (
	"os"

	"github.com/kovetskiy/ko"
	"github.com/reconquest/karma-go"
)

// File is the shape of an optional --config YAML file.
type File struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	LogLevel string `yaml:"log_level"`
}

// Credentials is the fully-resolved configuration the exporter runs
// with, after merging file, environment, and flag sources.
type Credentials struct {
	BaseURL  string
	Username string
	Password string
	LogLevel string
}

// Flags is the subset of CLI flags that can override configuration.
type Flags struct {
	BaseURL  string
	Username string
	Password string
	LogLevel string
}

// Load reads path (if it exists) into a File via ko, matching the
// teacher's "config is optional, missing file is not an error" idiom.
func Load(path string) (File, error) {
	var file File
	if path == "" {
		return file, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return file, nil
	}

	err := ko.Load(path, &file)
	if err != nil {
		return File{}, karma.Describe("path", path).Format(err, "load config file")
	}

	return file, nil
}

// Resolve merges file, environment, and flags into Credentials, with
// flags taking precedence over environment, which takes precedence
// over the file (spec §6: CONFLUENCE_BASE_URL/CONFLUENCE_USERNAME/
// CONFLUENCE_PASSWORD/LOG_LEVEL).
func Resolve(file File, flags Flags) (Credentials, error) {
	creds := Credentials{
		BaseURL:  firstNonEmpty(flags.BaseURL, os.Getenv("CONFLUENCE_BASE_URL"), file.BaseURL),
		Username: firstNonEmpty(flags.Username, os.Getenv("CONFLUENCE_USERNAME"), file.Username),
		Password: firstNonEmpty(flags.Password, os.Getenv("CONFLUENCE_PASSWORD"), file.Password),
		LogLevel: firstNonEmpty(flags.LogLevel, os.Getenv("LOG_LEVEL"), file.LogLevel),
	}

	if creds.BaseURL == "" {
		return Credentials{}, karma.Reason("CONFLUENCE_BASE_URL is required (flag, env, or config file)")
	}
	if creds.Username == "" {
		return Credentials{}, karma.Reason("CONFLUENCE_USERNAME is required (flag, env, or config file)")
	}
	if creds.Password == "" {
		return Credentials{}, karma.Reason("CONFLUENCE_PASSWORD is required (flag, env, or config file)")
	}

	if creds.LogLevel == "" {
		creds.LogLevel = "info"
	}

	return creds, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
