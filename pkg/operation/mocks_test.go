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

package operation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/walteh/adtclean/pkg/engine"
	"github.com/walteh/adtclean/pkg/model"
)

// 🔧 MockSession is a mock implementation of the remote.Session interface
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Fetch(ctx context.Context, ref model.ObjectReference) (model.SourceSnapshot, error) {
	result := m.Called(ctx, ref)
	return result.Get(0).(model.SourceSnapshot), result.Error(1)
}

func (m *MockSession) Lock(ctx context.Context, ref model.ObjectReference) (model.LockHandle, error) {
	result := m.Called(ctx, ref)
	return result.Get(0).(model.LockHandle), result.Error(1)
}

func (m *MockSession) Update(ctx context.Context, ref model.ObjectReference, lock model.LockHandle, snapshot model.SourceSnapshot, newText string) error {
	result := m.Called(ctx, ref, lock, snapshot, newText)
	return result.Error(0)
}

func (m *MockSession) Activate(ctx context.Context, ref model.ObjectReference, transport model.TransportContext) (model.ActivationReport, error) {
	result := m.Called(ctx, ref, transport)
	return result.Get(0).(model.ActivationReport), result.Error(1)
}

func (m *MockSession) Unlock(ctx context.Context, ref model.ObjectReference, lock model.LockHandle) error {
	result := m.Called(ctx, ref, lock)
	return result.Error(0)
}

func (m *MockSession) ValidateTransport(ctx context.Context, transport model.TransportContext) error {
	result := m.Called(ctx, transport)
	return result.Error(0)
}

func (m *MockSession) Close() error {
	result := m.Called()
	return result.Error(0)
}

// 🔧 MockCleaner is a mock implementation of the engine.Cleaner interface
type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) Clean(ctx context.Context, source string, rules engine.RuleConfig, timeout time.Duration) (model.CleanupResult, error) {
	result := m.Called(ctx, source, rules, timeout)
	return result.Get(0).(model.CleanupResult), result.Error(1)
}

// 🔧 MockRecorder is a mock implementation of the Recorder interface
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, ref model.ObjectReference, cleaned string, diff string) error {
	result := m.Called(ctx, ref, cleaned, diff)
	return result.Error(0)
}

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func testRef(index int, label string) model.ObjectReference {
	return model.ObjectReference{
		Index: index,
		Raw:   "/sap/bc/adt/oo/classes/" + strings.ToLower(label) + "/source/main",
		URL:   "https://sap.example.com/sap/bc/adt/oo/classes/" + strings.ToLower(label) + "/source/main",
		Label: label,
		Stem:  label,
	}
}

func testPolicy() Policy {
	return Policy{
		RequestTimeout: time.Second,
		EngineTimeout:  time.Second,
		Retries:        2,
		RetryBase:      time.Millisecond,
	}
}
