package testkit

import (
	"errors"
	"strings"
	"testing"
)

type fakeService struct {
	name     string
	props    map[string]any
	startErr error
	stopErr  error
	started  bool
	onStop   func()
}

func (f *fakeService) Start() (map[string]any, error) {
	f.started = true
	return f.props, f.startErr
}

func (f *fakeService) Stop() error {
	if f.onStop != nil {
		f.onStop()
	}
	return f.stopErr
}

func (f *fakeService) GetName() string { return f.name }

func TestTestEnv_StartMergesProperties(t *testing.T) {
	cloner := &fakeService{name: "cloner", props: map[string]any{"repo_dir": "/tmp/repo"}}
	server := &fakeService{name: "server", props: map[string]any{PropBaseURL: "http://localhost:1"}}
	env := NewTestEnv(cloner, server)

	if props := env.GetContext().GetProperties(); len(props) != 0 {
		t.Errorf("Expected no properties before start, got %v", props)
	}

	props, err := env.Start()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !cloner.started || !server.started {
		t.Error("Expected both services to start")
	}
	if props["repo_dir"] != "/tmp/repo" || props[PropBaseURL] != "http://localhost:1" {
		t.Errorf("Unexpected properties %v", props)
	}
	if v, ok := env.GetContext().GetProperty(PropBaseURL); !ok || v != "http://localhost:1" {
		t.Errorf("GetProperty(%s) = %v, %v", PropBaseURL, v, ok)
	}
	if _, ok := env.GetContext().GetProperty("missing"); ok {
		t.Error("Expected missing property not to be found")
	}
}

func TestTestEnv_StartError(t *testing.T) {
	startErr := errors.New("start failed")
	later := &fakeService{name: "later"}
	env := NewTestEnv(&fakeService{name: "failing-svc", startErr: startErr}, later)

	_, err := env.Start()
	if !errors.Is(err, startErr) {
		t.Fatalf("Expected wrapped start error, got %v", err)
	}
	if err.Error() != "failing-svc: start failed" {
		t.Errorf("Expected service name in error, got %v", err)
	}
	if later.started {
		t.Error("Services after a failure should not start")
	}
}

func TestTestEnv_StopReverseOrder(t *testing.T) {
	var order []string
	first := &fakeService{name: "first", stopErr: errors.New("first failed"), onStop: func() { order = append(order, "first") }}
	second := &fakeService{name: "second", stopErr: errors.New("second failed"), onStop: func() { order = append(order, "second") }}

	err := NewTestEnv(first, second).Stop()

	if strings.Join(order, ",") != "second,first" {
		t.Errorf("Expected reverse stop order, got %v", order)
	}
	if err == nil || err.Error() != "first failed" {
		t.Errorf("Expected the last stop error, got %v", err)
	}
}

func TestGetFreePort(t *testing.T) {
	if port, err := GetFreePort(); err != nil || port <= 0 {
		t.Errorf("GetFreePort() = %d, %v", port, err)
	}
	if port := MustGetFreePort(t); port <= 0 {
		t.Errorf("MustGetFreePort() = %d", port)
	}
	if _, err := getFreePortWithAddr("invalid:address:format"); err == nil {
		t.Error("Expected error for invalid address")
	}
}

func TestNewTestFlags(t *testing.T) {
	customDir := t.TempDir()

	tests := []struct {
		name string
		opts *FlagOptions
		want map[string]string
	}{
		{
			name: "defaults",
			want: map[string]string{
				"transport":            "sse",
				"auth-type":            "none",
				"host":                 "localhost",
				"index-path":           "memory",
				"index-backend":        "chromem",
				"ingest-clone-backend": "gogit",
				"embedding-provider":   "hash",
			},
		},
		{
			name: "overrides",
			opts: &FlagOptions{
				Port:         9999,
				Transport:    "stdio",
				AuthType:     "basic",
				Host:         "127.0.0.1",
				BaseDir:      customDir,
				IndexBackend: "bleve",
				IndexPath:    "/tmp/idx",
				CloneBackend: "cli",
			},
			want: map[string]string{
				"transport":            "stdio",
				"auth-type":            "basic",
				"host":                 "127.0.0.1",
				"ingest-base-dir":      customDir,
				"index-backend":        "bleve",
				"index-path":           "/tmp/idx",
				"ingest-clone-backend": "cli",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := NewTestFlags(t, tt.opts)
			for name, value := range tt.want {
				if got, _ := flags.GetString(name); got != value {
					t.Errorf("%s = %q, want %q", name, got, value)
				}
			}

			port, _ := flags.GetInt("port")
			if tt.opts != nil && tt.opts.Port != 0 && port != tt.opts.Port {
				t.Errorf("port = %d, want %d", port, tt.opts.Port)
			}
			if port <= 0 {
				t.Errorf("Expected positive port, got %d", port)
			}
			if allow, _ := flags.GetBool("ingest-allow-local"); !allow {
				t.Error("Expected local repositories to be allowed")
			}
			if dir, _ := flags.GetString("ingest-base-dir"); dir == "" {
				t.Error("Expected a base dir")
			}
		})
	}
}

func TestServerService_StartupFailure(t *testing.T) {
	flags := NewTestFlags(t, nil)
	if err := flags.Set("ingest-chunk-mode", "sentences"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}

	svc := NewServerService(flags)
	if _, err := svc.Start(); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("Expected a configuration error, got %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("Stop after a failed start should be a no-op, got %v", err)
	}
}
