// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

type outbox struct {
	mu   sync.Mutex
	msgs []auth.ResetMessage
}

func (o *outbox) SendResetLink(_ context.Context, msg auth.ResetMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// fakeMigrator records calls and reports a fixed status.
type fakeMigrator struct {
	upErr    error
	stepsArg int
	calls    []string
	status   store.Status
	closed   bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	if m.upErr == nil {
		m.status = store.Status{Version: 3}
	}
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	m.status = store.Status{Version: 0, Pending: []uint{1, 2, 3}}
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.stepsArg = n
	return nil
}

func (m *fakeMigrator) Status() (store.Status, error) {
	return m.status, nil
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}
