package kvstore

import (
	"fmt"

	"shopledger/internal/domain"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Earnings reads the running total. Missing, unparseable or negative text
// reads as zero.
func (s *Store) Earnings() domain.Amount {
	raw, ok := s.Get(KeyEarnings)
	if !ok {
		return decimal.Zero
	}

	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		s.logger.Warn("Ignoring invalid stored earnings", zap.String("value", raw))
		return decimal.Zero
	}
	return value
}

// SetEarnings stores the earnings accumulator.
func (s *Store) SetEarnings(value domain.Amount) error {
	return s.Set(KeyEarnings, value.String())
}

// Navigation returns the persisted navigation state or the default when it
// is missing or unreadable.
func (s *Store) Navigation() domain.NavigationState {
	raw, ok := s.Get(KeyNavigation)
	if !ok {
		return domain.DefaultNavigationState()
	}

	var state domain.NavigationState
	if err := json.UnmarshalFromString(raw, &state); err != nil || state.View == "" {
		s.logger.Warn("Ignoring invalid stored navigation state", zap.Error(err))
		return domain.DefaultNavigationState()
	}
	return state
}

// SetNavigation stores the navigation state as JSON.
func (s *Store) SetNavigation(state domain.NavigationState) error {
	raw, err := json.MarshalToString(state)
	if err != nil {
		return fmt.Errorf("failed to encode navigation state: %w", err)
	}
	return s.Set(KeyNavigation, raw)
}

// Identity returns the signed-in identity, if one is stored and usable.
func (s *Store) Identity() (domain.Identity, bool) {
	raw, ok := s.Get(KeyIdentity)
	if !ok {
		return domain.Identity{}, false
	}

	var identity domain.Identity
	if err := json.UnmarshalFromString(raw, &identity); err != nil || !identity.Valid() {
		s.logger.Warn("Ignoring invalid stored identity", zap.Error(err))
		return domain.Identity{}, false
	}
	return identity, true
}

// SetIdentity stores the signed-in identity as JSON.
func (s *Store) SetIdentity(identity domain.Identity) error {
	raw, err := json.MarshalToString(identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	return s.Set(KeyIdentity, raw)
}

// ClearIdentity removes the stored identity.
func (s *Store) ClearIdentity() error {
	return s.Delete(KeyIdentity)
}
