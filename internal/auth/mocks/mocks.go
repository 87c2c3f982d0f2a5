// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks of the auth repository and
// collaborator interfaces. Constructors register AssertExpectations as a
// test cleanup.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authgate/internal/auth"
)

// T is the subset of *testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

func register(t T, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// getPtr returns the typed pointer stored in ret at index i, or nil.
func getPtr[V any](ret mock.Arguments, i int) *V {
	v, _ := ret.Get(i).(*V) //nolint:errcheck // type assertion, nil on mismatch
	return v
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository bound to t.
func NewMockUserRepository(t T) *MockUserRepository {
	m := &MockUserRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks auth.UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	ret := m.Called(ctx, user)
	if fn, ok := ret.Get(0).(func(context.Context, *auth.User) error); ok {
		return fn(ctx, user)
	}
	return ret.Error(0)
}

// GetByID mocks auth.UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	ret := m.Called(ctx, id)
	return getPtr[auth.User](ret, 0), ret.Error(1)
}

// GetByEmail mocks auth.UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	return getPtr[auth.User](ret, 0), ret.Error(1)
}

// UpdatePassword mocks auth.UserRepository.UpdatePassword.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// Delete mocks auth.UserRepository.Delete.
func (m *MockUserRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// MockSessionRepository is a mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a MockSessionRepository bound to t.
func NewMockSessionRepository(t T) *MockSessionRepository {
	m := &MockSessionRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks auth.SessionRepository.Create.
func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

// GetByTokenHash mocks auth.SessionRepository.GetByTokenHash.
func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ret := m.Called(ctx, tokenHash)
	return getPtr[auth.Session](ret, 0), ret.Error(1)
}

// UpdateLastUsed mocks auth.SessionRepository.UpdateLastUsed.
func (m *MockSessionRepository) UpdateLastUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// Delete mocks auth.SessionRepository.Delete.
func (m *MockSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// DeleteByUser mocks auth.SessionRepository.DeleteByUser.
func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	ret := m.Called(ctx, userID)
	n, _ := ret.Get(0).(int64) //nolint:errcheck // type assertion
	return n, ret.Error(1)
}

// DeleteExpired mocks auth.SessionRepository.DeleteExpired.
func (m *MockSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	n, _ := ret.Get(0).(int64) //nolint:errcheck // type assertion
	return n, ret.Error(1)
}

// MockPasswordResetRepository is a mock of auth.PasswordResetRepository.
type MockPasswordResetRepository struct {
	mock.Mock
}

// NewMockPasswordResetRepository creates a MockPasswordResetRepository bound to t.
func NewMockPasswordResetRepository(t T) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks auth.PasswordResetRepository.Create.
func (m *MockPasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	return m.Called(ctx, reset).Error(0)
}

// GetByTokenHash mocks auth.PasswordResetRepository.GetByTokenHash.
func (m *MockPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	ret := m.Called(ctx, tokenHash)
	return getPtr[auth.PasswordReset](ret, 0), ret.Error(1)
}

// GetLatestByUser mocks auth.PasswordResetRepository.GetLatestByUser.
func (m *MockPasswordResetRepository) GetLatestByUser(ctx context.Context, userID int64) (*auth.PasswordReset, error) {
	ret := m.Called(ctx, userID)
	return getPtr[auth.PasswordReset](ret, 0), ret.Error(1)
}

// Consume mocks auth.PasswordResetRepository.Consume.
func (m *MockPasswordResetRepository) Consume(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// Delete mocks auth.PasswordResetRepository.Delete.
func (m *MockPasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// DeleteByUser mocks auth.PasswordResetRepository.DeleteByUser.
func (m *MockPasswordResetRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

// DeleteExpired mocks auth.PasswordResetRepository.DeleteExpired.
func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	n, _ := ret.Get(0).(int64) //nolint:errcheck // type assertion
	return n, ret.Error(1)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher bound to t.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(t, &m.Mock)
	return m
}

// Hash mocks auth.PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

// Verify mocks auth.PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade mocks auth.PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockResetNotifier is a mock of auth.ResetNotifier.
type MockResetNotifier struct {
	mock.Mock
}

// NewMockResetNotifier creates a MockResetNotifier bound to t.
func NewMockResetNotifier(t T) *MockResetNotifier {
	m := &MockResetNotifier{}
	register(t, &m.Mock)
	return m
}

// SendResetLink mocks auth.ResetNotifier.SendResetLink.
func (m *MockResetNotifier) SendResetLink(ctx context.Context, msg auth.ResetMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// Compile-time interface checks.
var (
	_ auth.UserRepository          = (*MockUserRepository)(nil)
	_ auth.SessionRepository       = (*MockSessionRepository)(nil)
	_ auth.PasswordResetRepository = (*MockPasswordResetRepository)(nil)
	_ auth.PasswordHasher          = (*MockPasswordHasher)(nil)
	_ auth.ResetNotifier           = (*MockResetNotifier)(nil)
)
