package trackings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	cachemocks "github.com/BearBump/TrackBot/internal/cache/mocks"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/fake"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	trackingsmocks "github.com/BearBump/TrackBot/internal/services/trackings/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo   *trackingsmocks.MockRepository
	engine *trackingsmocks.MockFirstTracker
	cache  *cachemocks.MockBytesCache
	svc    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &trackingsmocks.MockRepository{}
	s.engine = &trackingsmocks.MockFirstTracker{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.repo, s.engine, fake.New(), s.cache, 2*time.Minute)
}

func (s *ServiceSuite) TestTrack_InvalidIDTouchesNothing() {
	for _, raw := range []string{"", "abc", "AB 1234", "ab$1234", "<script>", string(make([]byte, 41))} {
		_, err := s.svc.Track(context.Background(), models.Subscriber{SubscriberID: 1}, raw)
		s.Require().ErrorIs(err, ErrInvalidTrackingID, raw)
	}
	s.repo.AssertNotCalled(s.T(), "GetTracking", mock.Anything, mock.Anything)
	s.engine.AssertNotCalled(s.T(), "OnFirstTrack", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrack_UnknownIDUnresolved() {
	s.repo.On("GetTracking", mock.Anything, "AB12345").Return(nil, false, nil).Once()
	s.engine.On("OnFirstTrack", mock.Anything, "AB12345").Return(models.ShipmentStatus{}, false, nil).Once()

	_, err := s.svc.Track(context.Background(), models.Subscriber{SubscriberID: 1}, " ab12345 ")
	s.Require().ErrorIs(err, ErrUnresolved)
	s.repo.AssertNotCalled(s.T(), "AddSubscription", mock.Anything, mock.Anything, mock.Anything)
	s.repo.AssertNotCalled(s.T(), "UpsertSubscriber", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrack_KnownIDDoesNotFetch() {
	st := "In transit"
	row := &models.Tracking{TrackingID: "AB12345", LastStatus: &st}
	sub := models.Subscriber{SubscriberID: 1, Username: "u"}

	s.repo.On("GetTracking", mock.Anything, "AB12345").Return(row, true, nil).Twice()
	s.repo.On("AddSubscription", mock.Anything, int64(1), "AB12345").Return(false, nil).Once()
	s.repo.On("UpsertSubscriber", mock.Anything, sub).Return(nil).Once()

	res, err := s.svc.Track(context.Background(), sub, "AB12345")
	s.Require().NoError(err)
	s.Require().True(res.AlreadySubscribed)
	s.Require().Nil(res.Status)
	s.Require().Equal("In transit", res.Cached.StatusOr(""))
	s.engine.AssertNotCalled(s.T(), "OnFirstTrack", mock.Anything, mock.Anything)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestTrack_StorageErrorIsReturned() {
	s.repo.On("GetTracking", mock.Anything, "AB12345").Return(nil, false, errors.New("db down")).Once()
	_, err := s.svc.Track(context.Background(), models.Subscriber{SubscriberID: 1}, "AB12345")
	s.Require().Error(err)
}

func (s *ServiceSuite) TestUntrack_LastSubscriberDeletesAndEvicts() {
	s.repo.On("RemoveSubscription", mock.Anything, int64(1), "AB12345").Return(int64(1), nil).Once()
	s.repo.On("CountSubscriptions", mock.Anything, "AB12345").Return(int64(0), nil).Once()
	s.repo.On("DeleteTracking", mock.Anything, "AB12345").Return(nil).Once()
	s.cache.On("Delete", mock.Anything, "info:AB12345").Return(nil).Once()

	id, err := s.svc.Untrack(context.Background(), 1, "ab12345")
	s.Require().NoError(err)
	s.Require().Equal("AB12345", id)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestUntrack_NotSubscribed() {
	s.repo.On("RemoveSubscription", mock.Anything, int64(1), "AB12345").Return(int64(0), nil).Once()
	_, err := s.svc.Untrack(context.Background(), 1, "AB12345")
	s.Require().ErrorIs(err, ErrNotSubscribed)
	s.repo.AssertNotCalled(s.T(), "DeleteTracking", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestInfo_CacheHit_NoFetch() {
	want := models.ShipmentStatus{TrackingID: "AB12345", StatusText: "Cached"}
	b, _ := json.Marshal(want)
	s.cache.On("Get", mock.Anything, "info:AB12345").Return(b, true, nil).Once()

	got, err := s.svc.Info(context.Background(), "AB12345")
	s.Require().NoError(err)
	s.Require().Equal("Cached", got.StatusText)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestInfo_CacheMiss_FetchesAndStores() {
	id := presentFakeID(s.T())
	s.cache.On("Get", mock.Anything, "info:"+id).Return(nil, false, nil).Once()
	s.cache.On("Set", mock.Anything, "info:"+id, mock.Anything, 2*time.Minute).Return(nil).Once()

	got, err := s.svc.Info(context.Background(), id)
	s.Require().NoError(err)
	s.Require().Equal(id, got.TrackingID)
	s.Require().True(got.HasStatus())
	s.cache.AssertExpectations(s.T())
	s.repo.AssertNotCalled(s.T(), "CompareAndSetStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// presentFakeID finds an id the offline provider resolves.
func presentFakeID(t *testing.T) string {
	t.Helper()
	p := fake.New()
	for _, id := range []string{"AB12345", "AB12346", "AB12347", "AB12348", "AB12349", "AB12350"} {
		if _, ok := p.Fetch(context.Background(), id); ok {
			return id
		}
	}
	t.Fatal("no resolvable id")
	return ""
}
