package mocks

import (
	"context"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetTracking(ctx context.Context, trackingID string) (*models.Tracking, bool, error) {
	args := m.Called(ctx, trackingID)
	var t *models.Tracking
	if v := args.Get(0); v != nil {
		t = v.(*models.Tracking)
	}
	return t, args.Bool(1), args.Error(2)
}

func (m *MockRepository) GetTrackings(ctx context.Context, ids []string) ([]*models.Tracking, error) {
	args := m.Called(ctx, ids)
	var out []*models.Tracking
	if v := args.Get(0); v != nil {
		out = v.([]*models.Tracking)
	}
	return out, args.Error(1)
}

func (m *MockRepository) DeleteTracking(ctx context.Context, trackingID string) error {
	return m.Called(ctx, trackingID).Error(0)
}

func (m *MockRepository) AddSubscription(ctx context.Context, subscriberID int64, trackingID string) (bool, error) {
	args := m.Called(ctx, subscriberID, trackingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) RemoveSubscription(ctx context.Context, subscriberID int64, trackingID string) (int64, error) {
	args := m.Called(ctx, subscriberID, trackingID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CountSubscriptions(ctx context.Context, trackingID string) (int64, error) {
	args := m.Called(ctx, trackingID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListSubscriptions(ctx context.Context, subscriberID int64) ([]string, error) {
	args := m.Called(ctx, subscriberID)
	var out []string
	if v := args.Get(0); v != nil {
		out = v.([]string)
	}
	return out, args.Error(1)
}

func (m *MockRepository) UpsertSubscriber(ctx context.Context, sub models.Subscriber) error {
	return m.Called(ctx, sub).Error(0)
}

type MockFirstTracker struct {
	mock.Mock
}

func (m *MockFirstTracker) OnFirstTrack(ctx context.Context, trackingID string) (models.ShipmentStatus, bool, error) {
	args := m.Called(ctx, trackingID)
	return args.Get(0).(models.ShipmentStatus), args.Bool(1), args.Error(2)
}
