package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	test := assert.New(t)

	file, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	test.NoError(err)
	test.Equal(File{}, file)
}

func TestLoadEmptyPathIsNotAnError(t *testing.T) {
	test := assert.New(t)

	file, err := Load("")
	test.NoError(err)
	test.Equal(File{}, file)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	test := assert.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "base_url: https://confluence.example.com\nusername: alice\npassword: secret\nlog_level: debug\n"
	test.NoError(os.WriteFile(path, []byte(contents), 0o644))

	file, err := Load(path)
	test.NoError(err)
	test.Equal("https://confluence.example.com", file.BaseURL)
	test.Equal("alice", file.Username)
	test.Equal("debug", file.LogLevel)
}

func TestResolveFlagsOverrideEnvAndFile(t *testing.T) {
	test := assert.New(t)

	t.Setenv("CONFLUENCE_BASE_URL", "https://env.example.com")
	t.Setenv("CONFLUENCE_USERNAME", "env-user")
	t.Setenv("CONFLUENCE_PASSWORD", "env-pass")

	file := File{BaseURL: "https://file.example.com", Username: "file-user", Password: "file-pass"}
	flags := Flags{BaseURL: "https://flag.example.com"}

	creds, err := Resolve(file, flags)
	test.NoError(err)
	test.Equal("https://flag.example.com", creds.BaseURL)
	test.Equal("env-user", creds.Username)
	test.Equal("env-pass", creds.Password)
}

func TestResolveDefaultsLogLevel(t *testing.T) {
	test := assert.New(t)

	creds, err := Resolve(
		File{BaseURL: "https://x.example.com", Username: "u", Password: "p"},
		Flags{},
	)
	test.NoError(err)
	test.Equal("info", creds.LogLevel)
}

func TestResolveMissingRequiredFieldErrors(t *testing.T) {
	test := assert.New(t)

	_, err := Resolve(File{}, Flags{})
	test.Error(err)
}
