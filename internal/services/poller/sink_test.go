package poller

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/TrackBot/internal/broker/messages"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/BearBump/TrackBot/internal/services/tracksync"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type reconcilerMock struct{ mock.Mock }

func (m *reconcilerMock) OnPollResult(ctx context.Context, st models.ShipmentStatus) (tracksync.Outcome, error) {
	args := m.Called(ctx, st)
	return args.Get(0).(tracksync.Outcome), args.Error(1)
}

type producerMock struct{ mock.Mock }

func (m *producerMock) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func TestEngineSink_Apply(t *testing.T) {
	r := &reconcilerMock{}
	st := models.ShipmentStatus{TrackingID: "X1", StatusText: "Delivered"}
	r.On("OnPollResult", mock.Anything, st).Return(tracksync.OutcomeApplied, nil).Once()

	require.NoError(t, NewEngineSink(r).Apply(context.Background(), st))
	r.AssertExpectations(t)
}

func TestEngineSink_ApplyError(t *testing.T) {
	r := &reconcilerMock{}
	r.On("OnPollResult", mock.Anything, mock.Anything).Return(tracksync.Outcome(""), errors.New("db")).Once()
	require.Error(t, NewEngineSink(r).Apply(context.Background(), models.ShipmentStatus{TrackingID: "X1"}))
}

func TestKafkaSink_PublishesTrackingUpdated(t *testing.T) {
	pm := &producerMock{}
	st := models.ShipmentStatus{TrackingID: "X1", StatusText: "Delivered"}

	pm.On("Publish", mock.Anything, "tracking.updated", []byte("X1"), mock.MatchedBy(func(v []byte) bool {
		msg, err := messages.DecodeTrackingUpdated(v)
		return err == nil && msg.Provider == "fake" && msg.Status.StatusText == "Delivered"
	})).Return(nil).Once()

	require.NoError(t, NewKafkaSink(pm, "tracking.updated", "fake").Apply(context.Background(), st))
	pm.AssertExpectations(t)
}

func TestKafkaSink_RetriesThenFails(t *testing.T) {
	pm := &producerMock{}
	pm.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	s := NewKafkaSink(pm, "t", "fake")
	s.attempts = 3
	s.backoff = time.Millisecond

	err := s.Apply(context.Background(), models.ShipmentStatus{TrackingID: "X1", StatusText: "x"})
	require.EqualError(t, err, "kafka down")
	pm.AssertNumberOfCalls(t, "Publish", 3)
}

func TestKafkaSink_RetryThenSuccess(t *testing.T) {
	pm := &producerMock{}
	pm.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("not ready")).Once()
	pm.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	s := NewKafkaSink(pm, "t", "fake")
	s.backoff = time.Millisecond
	require.NoError(t, s.Apply(context.Background(), models.ShipmentStatus{TrackingID: "X1", StatusText: "x"}))
	pm.AssertNumberOfCalls(t, "Publish", 2)
}
