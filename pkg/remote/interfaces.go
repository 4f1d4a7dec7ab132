// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote defines how the batch talks to the system holding the source objects.
package remote

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
)

const (
	EnvUser     = "SAP_USER"
	EnvPassword = "SAP_PASS"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Connector{}
)

// Register makes a connector available by name
func Register(name string, c Connector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

// Get returns the connector registered under name
func Get(name string) (Connector, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	if !ok {
		options := make([]string, 0, len(registry))
		for k := range registry {
			options = append(options, k)
		}
		sort.Strings(options)
		return nil, errors.Errorf("connector %s not found, options: %s", name, strings.Join(options, ", "))
	}
	return c, nil
}

// 🔌 Connector opens authenticated sessions against a remote system
type Connector interface {
	// Authenticate opens a new session. Every call returns an independent session.
	Authenticate(ctx context.Context, creds Credentials, target Target) (Session, error)
}

// 🛰️ Session is one authenticated, stateful conversation with the remote system.
// A session is used by a single worker at a time; locks are bound to it.
type Session interface {
	// Fetch returns the current source of the object
	Fetch(ctx context.Context, ref model.ObjectReference) (model.SourceSnapshot, error)
	// Lock acquires the edit lock, failing with Locked when someone else holds it
	Lock(ctx context.Context, ref model.ObjectReference) (model.LockHandle, error)
	// Update writes newText (LF line endings) guarded by the snapshot's concurrency token
	Update(ctx context.Context, ref model.ObjectReference, lock model.LockHandle, snapshot model.SourceSnapshot, newText string) error
	// Activate activates the object; errors carry the compiler diagnostics
	Activate(ctx context.Context, ref model.ObjectReference, transport model.TransportContext) (model.ActivationReport, error)
	// Unlock releases the lock, best effort
	Unlock(ctx context.Context, ref model.ObjectReference, lock model.LockHandle) error
	// ValidateTransport checks that the transport request exists and is usable
	ValidateTransport(ctx context.Context, transport model.TransportContext) error
	// Close ends the session
	Close() error
}

// 🔑 Credentials for basic authentication
type Credentials struct {
	User     string
	Password string
}

// String hides the password
func (c Credentials) String() string {
	return c.User + ":***"
}

// CredentialsFromEnv reads SAP_USER and SAP_PASS
func CredentialsFromEnv() (Credentials, error) {
	c := Credentials{User: os.Getenv(EnvUser), Password: os.Getenv(EnvPassword)}
	if c.User == "" || c.Password == "" {
		return Credentials{}, model.NewError(model.KindAuth, "credentials", EnvUser+" and "+EnvPassword+" must be set")
	}
	return c, nil
}

// 🎯 Target is the remote endpoint a session talks to
type Target struct {
	BaseURL  string
	Client   string
	Insecure bool
	Timeout  time.Duration // per request
}
