package bootstrap

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/regkit/component"
	"github.com/kbukum/regkit/config"
	"github.com/kbukum/regkit/logger"
)

type testConfig struct {
	config.ServiceConfig
}

type mockComponent struct {
	name     string
	startErr error
	stopErr  error
	health   component.Health
	started  bool
	stopped  bool
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	m.started = true
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopped = true
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) component.Health {
	return m.health
}

// ctxComponent records the context error seen by Stop.
type ctxComponent struct {
	mockComponent
	stopCtxErr error
	deadline   time.Time
}

func (c *ctxComponent) Stop(ctx context.Context) error {
	c.stopped = true
	c.stopCtxErr = ctx.Err()
	c.deadline, _ = ctx.Deadline()
	return nil
}

func healthy(name string) *mockComponent {
	return &mockComponent{name: name, health: component.Health{Name: name, Status: component.StatusHealthy}}
}

func newTestApp(t *testing.T, opts ...Option) *App[*testConfig] {
	t.Helper()
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "regkit-agent", Version: "1.0.0", Environment: "development"}}
	app, err := NewApp(cfg, append([]Option{WithLogger(logger.Nop())}, opts...)...)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)
	if app.Name != "regkit-agent" {
		t.Errorf("expected name 'regkit-agent', got %q", app.Name)
	}
	if app.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", app.Version)
	}
	if app.Cfg.Logging.Level != "info" {
		t.Errorf("expected defaults applied to config, got level %q", app.Cfg.Logging.Level)
	}
	if app.gracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("expected default %v, got %v", DefaultGracefulTimeout, app.gracefulTimeout)
	}
}

func TestNewApp_InitializesLoggerFromConfig(t *testing.T) {
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "regkit-agent"}}
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.Logger == nil {
		t.Fatal("expected logger to be initialized")
	}
	if logger.GetGlobalLogger() != app.Logger {
		t.Error("expected app logger to become the global logger")
	}
}

func TestNewApp_Validation(t *testing.T) {
	_, err := NewApp(&testConfig{ServiceConfig: config.ServiceConfig{Environment: "development"}})
	if err == nil || !strings.Contains(err.Error(), "config validation") {
		t.Errorf("expected config validation error, got %v", err)
	}
}

func TestWithGracefulTimeout(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"custom", 30 * time.Second, 30 * time.Second},
		{"zero ignored", 0, DefaultGracefulTimeout},
		{"negative ignored", -time.Second, DefaultGracefulTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, WithGracefulTimeout(tc.in))
			if app.gracefulTimeout != tc.want {
				t.Errorf("expected %v, got %v", tc.want, app.gracefulTimeout)
			}
		})
	}
}

func TestRegisterComponent_Duplicate(t *testing.T) {
	app := newTestApp(t)
	if err := app.RegisterComponent(healthy("discovery")); err != nil {
		t.Fatalf("RegisterComponent failed: %v", err)
	}
	if err := app.RegisterComponent(healthy("discovery")); err == nil {
		t.Error("expected error registering a duplicate name")
	}
	if app.Components.Get("discovery") == nil {
		t.Error("expected component to be registered")
	}
}

func TestReadyCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  component.HealthStatus
		message string
		wantErr string
	}{
		{"healthy", component.StatusHealthy, "", ""},
		{"degraded", component.StatusDegraded, "registration failed", "discovery=degraded(registration failed)"},
		{"unhealthy", component.StatusUnhealthy, "", "discovery=unhealthy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			app.RegisterComponent(&mockComponent{
				name:   "discovery",
				health: component.Health{Name: "discovery", Status: tc.status, Message: tc.message},
			})

			err := app.ReadyCheck(context.Background())
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRunTask_LifecycleOrder(t *testing.T) {
	app := newTestApp(t)
	comp := healthy("discovery")
	app.RegisterComponent(comp)

	var order []string
	app.OnStart(func(ctx context.Context) error {
		order = append(order, "start")
		return nil
	})
	app.OnConfigure(func(ctx context.Context, a *App[*testConfig]) error {
		order = append(order, "configure")
		return nil
	})
	app.OnReady(func(ctx context.Context) error {
		order = append(order, "ready")
		return nil
	})
	app.OnStop(func(ctx context.Context) error {
		if comp.stopped {
			t.Error("expected OnStop hooks to run before components stop")
		}
		order = append(order, "stop")
		return nil
	})

	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	expected := []string{"start", "configure", "ready", "task", "stop"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, order)
	}
	if !comp.started || !comp.stopped {
		t.Errorf("expected component started and stopped, got started=%v stopped=%v", comp.started, comp.stopped)
	}
}

func TestRunTask_TaskErrorWins(t *testing.T) {
	app := newTestApp(t)
	app.RegisterComponent(&mockComponent{name: "discovery", stopErr: errors.New("stop failed")})

	taskErr := errors.New("lookup failed")
	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		return taskErr
	})
	if !errors.Is(err, taskErr) {
		t.Errorf("expected task error, got %v", err)
	}
}

func TestRunTask_StopErrorReported(t *testing.T) {
	app := newTestApp(t)
	app.RegisterComponent(&mockComponent{name: "discovery", stopErr: errors.New("stop failed")})

	err := app.RunTask(context.Background(), func(ctx context.Context) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "stop failed") {
		t.Errorf("expected stop error, got %v", err)
	}
}

func TestRunTask_Cancellation(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := app.RunTask(ctx, func(taskCtx context.Context) error {
		cancel()
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunTask_StartFailureStopsStartedComponents(t *testing.T) {
	app := newTestApp(t)
	first := healthy("telemetry")
	second := &mockComponent{name: "discovery", startErr: errors.New("no agents reachable")}
	app.RegisterComponent(first)
	app.RegisterComponent(second)

	ran := false
	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "initialization failed") {
		t.Fatalf("expected initialization error, got %v", err)
	}
	if ran {
		t.Error("expected task not to run")
	}
	if !first.stopped {
		t.Error("expected started component to be stopped")
	}
	if second.stopped {
		t.Error("expected failed component not to be stopped")
	}
}

func TestRunTask_HookErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		setup   func(app *App[*testConfig])
		wantErr string
	}{
		{"start hook", func(app *App[*testConfig]) {
			app.OnStart(func(ctx context.Context) error { return boom })
		}, "onStart hook failed"},
		{"configure", func(app *App[*testConfig]) {
			app.OnConfigure(func(ctx context.Context, a *App[*testConfig]) error { return boom })
		}, "configuration failed"},
		{"ready hook", func(app *App[*testConfig]) {
			app.OnReady(func(ctx context.Context) error { return boom })
		}, "onReady hook failed"},
		{"stop hook", func(app *App[*testConfig]) {
			app.OnStop(func(ctx context.Context) error { return boom })
		}, "hook 0 failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			tc.setup(app)
			err := app.RunTask(context.Background(), func(ctx context.Context) error { return nil })
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) || !errors.Is(err, boom) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)
	comp := healthy("http-server")
	app.RegisterComponent(comp)

	ctx, cancel := context.WithCancel(context.Background())
	app.OnReady(func(context.Context) error {
		cancel()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !comp.stopped {
		t.Error("expected component to be stopped")
	}
}

func TestWaitForSignal_ContextCancellation(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sig := app.WaitForSignal(ctx); sig != nil {
		t.Errorf("expected nil signal, got %v", sig)
	}
}

func TestShutdown_HonoursContext(t *testing.T) {
	t.Run("canceled context reaches components", func(t *testing.T) {
		app := newTestApp(t)
		comp := &ctxComponent{mockComponent: *healthy("discovery")}
		app.RegisterComponent(comp)
		if err := app.Components.StartAll(context.Background()); err != nil {
			t.Fatalf("StartAll: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var hookErr error
		app.OnStop(func(ctx context.Context) error {
			hookErr = ctx.Err()
			return nil
		})

		if err := app.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if !comp.stopped {
			t.Fatal("expected component to be stopped")
		}
		if !errors.Is(comp.stopCtxErr, context.Canceled) {
			t.Errorf("expected component to see context.Canceled, got %v", comp.stopCtxErr)
		}
		if !errors.Is(hookErr, context.Canceled) {
			t.Errorf("expected OnStop hook to see context.Canceled, got %v", hookErr)
		}
	})

	t.Run("earlier caller deadline wins", func(t *testing.T) {
		app := newTestApp(t, WithGracefulTimeout(time.Hour))
		comp := &ctxComponent{mockComponent: *healthy("discovery")}
		app.RegisterComponent(comp)
		if err := app.Components.StartAll(context.Background()); err != nil {
			t.Fatalf("StartAll: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		want, _ := ctx.Deadline()

		if err := app.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if comp.deadline.After(want) {
			t.Errorf("expected stop deadline no later than %v, got %v", want, comp.deadline)
		}
	})
}
