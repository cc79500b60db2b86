package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/app"
	"github.com/sha1n/mcp-repo-ingest/internal/config"
	"github.com/spf13/pflag"
)

// PropBaseURL is the property holding the started server's base URL.
const PropBaseURL = "base_url"

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.GetName(), err)
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port         int    // Uses free port if 0
	Transport    string // Defaults to "sse"
	AuthType     string // Defaults to "none"
	Host         string // Defaults to "localhost"
	BaseDir      string // Defaults to a test temp dir
	IndexBackend string // Defaults to "chromem"
	IndexPath    string // Defaults to "memory"
	CloneBackend string // Defaults to "gogit"
}

// NewTestFlags creates a configured pflag.FlagSet for a server that ingests
// local repositories into an in-memory index.
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	o := FlagOptions{
		Transport:    "sse",
		AuthType:     config.AuthTypeNone,
		Host:         "localhost",
		IndexBackend: config.IndexBackendChromem,
		IndexPath:    "memory",
		CloneBackend: config.CloneBackendGoGit,
	}
	if opts != nil {
		if opts.Port != 0 {
			o.Port = opts.Port
		}
		if opts.Transport != "" {
			o.Transport = opts.Transport
		}
		if opts.AuthType != "" {
			o.AuthType = opts.AuthType
		}
		if opts.Host != "" {
			o.Host = opts.Host
		}
		if opts.BaseDir != "" {
			o.BaseDir = opts.BaseDir
		}
		if opts.IndexBackend != "" {
			o.IndexBackend = opts.IndexBackend
		}
		if opts.IndexPath != "" {
			o.IndexPath = opts.IndexPath
		}
		if opts.CloneBackend != "" {
			o.CloneBackend = opts.CloneBackend
		}
	}
	if o.Port == 0 {
		o.Port = MustGetFreePort(t)
	}
	if o.BaseDir == "" {
		o.BaseDir = t.TempDir()
	}

	values := map[string]string{
		"port":                     fmt.Sprintf("%d", o.Port),
		"transport":                o.Transport,
		"auth-type":                o.AuthType,
		"host":                     o.Host,
		"ingest-base-dir":          o.BaseDir,
		"ingest-allow-local":       "true",
		"ingest-clone-backend":     o.CloneBackend,
		"index-backend":            o.IndexBackend,
		"index-path":               o.IndexPath,
		"embedding-provider":       config.EmbeddingProviderHash,
		"embedding-dimension":      "128",
		"ingest-max-parallel-jobs": "2",
	}
	for name, value := range values {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set flag %s: %v", name, err)
		}
	}

	return flags
}

// ServerService runs the full server over HTTP, as started from the command line.
type ServerService struct {
	flags *pflag.FlagSet

	mu   sync.Mutex
	srv  *http.Server
	done chan error
}

// NewServerService creates a service running the server configured by flags.
func NewServerService(flags *pflag.FlagSet) *ServerService {
	return &ServerService{flags: flags}
}

// GetName returns the service name.
func (s *ServerService) GetName() string {
	return app.ServerName
}

// Start runs the server in the background and waits until /health answers.
func (s *ServerService) Start() (map[string]any, error) {
	host, _ := s.flags.GetString("host")
	port, _ := s.flags.GetInt("port")
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	params := app.DefaultRunParams()
	params.StartSSEServer = func(m *mcp.Server, settings *config.Settings) error {
		srv, err := app.NewSSEServer(m, settings)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.srv = srv
		s.mu.Unlock()

		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	s.done = make(chan error, 1)
	go func() {
		s.done <- app.RunWithDeps(context.Background(), params, s.flags, "test")
	}()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-s.done:
			return nil, fmt.Errorf("server exited during startup: %w", err)
		default:
		}

		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return map[string]any{PropBaseURL: baseURL}, nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("server at %s not healthy after 10s", baseURL)
}

// Stop shuts the HTTP server down and waits for the run to return.
func (s *ServerService) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
