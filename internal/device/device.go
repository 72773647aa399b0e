// Package device identifies the local installation and describes the
// environment it runs in.
package device

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/store"
)

// Environment is the descriptive part of a DeviceInfo.
type Environment struct {
	Platform       string
	BrowserName    string
	BrowserVersion string
	UserAgent      string
}

// EnvironmentFunc reports the current environment. It is called on every
// GetDeviceInfo, so values may change between calls.
type EnvironmentFunc func() Environment

// StateStore is the key-value area the device id is persisted in.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
}

// StaticEnvironment returns an EnvironmentFunc for fixed values. An empty
// platform is filled from the Go runtime and an empty user agent from the
// host name.
func StaticEnvironment(env Environment) EnvironmentFunc {
	if env.Platform == "" {
		env.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}
	if env.UserAgent == "" {
		if host, err := os.Hostname(); err == nil {
			env.UserAgent = "chronsync (" + host + ")"
		}
	}
	return func() Environment { return env }
}

// Manager hands out the stable local device id and the current DeviceInfo.
type Manager struct {
	state StateStore
	env   EnvironmentFunc
	clock clock.Clock

	mu sync.Mutex
	id string
}

// NewManager creates a Manager. A nil env uses StaticEnvironment with no
// overrides.
func NewManager(state StateStore, env EnvironmentFunc, c clock.Clock) *Manager {
	if env == nil {
		env = StaticEnvironment(Environment{})
	}
	if c == nil {
		c = clock.New()
	}
	return &Manager{state: state, env: env, clock: c}
}

// DeviceID returns the persisted device id, generating and storing one on
// first use.
func (m *Manager) DeviceID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id != "" {
		return m.id, nil
	}
	id, ok, err := m.state.GetState(ctx, store.KeyLocalDeviceID)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if !ok || id == "" {
		id = uuid.NewString()
		if err := m.state.SetState(ctx, store.KeyLocalDeviceID, id); err != nil {
			return "", fmt.Errorf("persist device id: %w", err)
		}
	}
	m.id = id
	return id, nil
}

// GetDeviceInfo returns the local device description with LastSeen set to now.
func (m *Manager) GetDeviceInfo(ctx context.Context) (history.DeviceInfo, error) {
	id, err := m.DeviceID(ctx)
	if err != nil {
		return history.DeviceInfo{}, err
	}
	env := m.env()
	return history.DeviceInfo{
		DeviceID:       id,
		Platform:       env.Platform,
		BrowserName:    env.BrowserName,
		BrowserVersion: env.BrowserVersion,
		UserAgent:      env.UserAgent,
		LastSeen:       clock.NowMillis(m.clock),
	}, nil
}
