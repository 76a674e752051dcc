package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type hostPort struct {
	Host string
	Port string
}

func (h *hostPort) UnmarshalText(b []byte) error {
	host, port, ok := strings.Cut(string(b), ":")
	if !ok {
		return fmt.Errorf("missing port in %q", b)
	}
	h.Host, h.Port = host, port
	return nil
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Registry      struct {
		Targets  []hostPort    `mapstructure:"targets"`
		Timeout  time.Duration `mapstructure:"timeout"`
		Strategy string        `mapstructure:"default_strategy"`
		Tags     []string      `mapstructure:"tags"`
	} `mapstructure:"registry"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected logging defaults to apply, got level %q", cfg.Logging.Level)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ServiceConfig
		errMsg string
	}{
		{"valid", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "config.environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: material
environment: staging
registry:
  timeout: 3s
  default_strategy: round_robin
  targets:
    - 10.0.0.1:8500
    - 10.0.0.2:8500
`)

	var cfg testConfig
	if err := LoadConfig("material", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "material" || cfg.Environment != "staging" {
		t.Errorf("unexpected service config %+v", cfg.ServiceConfig)
	}
	if cfg.Registry.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", cfg.Registry.Timeout)
	}
	if len(cfg.Registry.Targets) != 2 || cfg.Registry.Targets[1].Host != "10.0.0.2" {
		t.Errorf("unexpected targets %+v", cfg.Registry.Targets)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: material
registry:
  default_strategy: random
`)
	t.Setenv("REGISTRY_DEFAULT_STRATEGY", "weighted")
	t.Setenv("REGISTRY_TARGETS", "a:8500,b:8501")
	t.Setenv("REGISTRY_TAGS", "blue,canary")

	var cfg testConfig
	if err := LoadConfig("material", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Registry.Strategy != "weighted" {
		t.Errorf("expected env override 'weighted', got %q", cfg.Registry.Strategy)
	}
	if len(cfg.Registry.Targets) != 2 || cfg.Registry.Targets[1].Port != "8501" {
		t.Errorf("expected targets decoded from env, got %+v", cfg.Registry.Targets)
	}
	if len(cfg.Registry.Tags) != 2 || cfg.Registry.Tags[1] != "canary" {
		t.Errorf("expected tags decoded from env, got %v", cfg.Registry.Tags)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "REGISTRY_TIMEOUT=750ms\n")
	t.Cleanup(func() { os.Unsetenv("REGISTRY_TIMEOUT") })

	var cfg testConfig
	err := LoadConfig("material", &cfg, WithConfigFile(filepath.Join(dir, "missing.yml")), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Registry.Timeout != 750*time.Millisecond {
		t.Errorf("expected timeout from .env, got %v", cfg.Registry.Timeout)
	}
}

func TestLoadConfig_MissingFileIsNotAnError(t *testing.T) {
	var cfg testConfig
	if err := LoadConfig("nothing", &cfg, WithConfigFile("/nonexistent/path.yml")); err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "name: [unterminated\n")

	var cfg testConfig
	if err := LoadConfig("material", &cfg, WithConfigFile(path)); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
	envErr error
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return m.envErr
}

func TestResolve_SearchOrder(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		filepath.Join(".", "cmd", "regkit-agent", "config.yml"): true,
		filepath.Join(".", "config.yml"):                        true,
		filepath.Join("..", ".env"):                             true,
	}}

	files := Resolve("regkit-agent", LoaderConfig{FileSystem: fs})
	if files.ConfigFile != filepath.Join("cmd", "regkit-agent", "config.yml") {
		t.Errorf("expected cmd config to win, got %q", files.ConfigFile)
	}
	if files.EnvFile != filepath.Join("..", ".env") {
		t.Errorf("expected ../.env, got %q", files.EnvFile)
	}
}

func TestResolve_ExplicitPathsWin(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"config.yml": true}}
	files := Resolve("svc", LoaderConfig{FileSystem: fs, ConfigFile: "/etc/svc.yml", EnvFile: "/etc/svc.env"})
	if files.ConfigFile != "/etc/svc.yml" || files.EnvFile != "/etc/svc.env" {
		t.Errorf("expected explicit paths, got %+v", files)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("DISCOVERY_SERVICE_CHECK_PATH")
	want := []string{
		"discovery_service_check_path",
		"discovery.service.check.path",
		"discovery.service_check_path",
		"discovery.service.check_path",
	}
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
			}
		}
		if !found {
			t.Errorf("expected variant %q in %v", w, got)
		}
	}
	if v := envKeyVariants("PORT"); len(v) != 1 || v[0] != "port" {
		t.Errorf("expected single variant for PORT, got %v", v)
	}
}

func TestStringToTextSliceHook(t *testing.T) {
	hook := stringToTextSliceHookFunc(",")
	strType := reflect.TypeFor[string]()

	tests := []struct {
		name string
		to   reflect.Type
		in   string
		want interface{}
	}{
		{"text slice is split", reflect.TypeFor[[]hostPort](), "a:1, b:2", []string{"a:1", "b:2"}},
		{"empty text slice", reflect.TypeFor[[]hostPort](), " ", []string{}},
		{"plain string slice untouched", reflect.TypeFor[[]string](), "a,b", "a,b"},
		{"scalar target untouched", reflect.TypeFor[hostPort](), "a:1,b:2", "a:1,b:2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := hook(strType, tc.to, tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestLoadConfig_WithFileSystem(t *testing.T) {
	t.Run("env file is loaded through the file system", func(t *testing.T) {
		fs := &mockFS{files: map[string]bool{".env": true}}
		var cfg testConfig
		if err := LoadConfig("svc", &cfg, WithFileSystem(fs)); err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if len(fs.loaded) != 1 || fs.loaded[0] != ".env" {
			t.Errorf("expected .env to be loaded once, got %v", fs.loaded)
		}
	})

	t.Run("env file error is returned", func(t *testing.T) {
		fs := &mockFS{files: map[string]bool{".env": true}, envErr: fmt.Errorf("permission denied")}
		var cfg testConfig
		err := LoadConfig("svc", &cfg, WithFileSystem(fs))
		if err == nil || !strings.Contains(err.Error(), "load env file .env") {
			t.Errorf("expected env file error, got %v", err)
		}
	})
}
