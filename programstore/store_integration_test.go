//go:build integration

package programstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/natsclient"
	"github.com/c360/blockflow/testutil"
)

type StoreIntegrationSuite struct {
	suite.Suite
	testClient *natsclient.TestClient
	store      *Store
	ctx        context.Context
	cancel     context.CancelFunc
	bucket     int
}

func (s *StoreIntegrationSuite) SetupSuite() {
	s.testClient = natsclient.NewTestClient(s.T(),
		natsclient.WithNATSVersion("2.11.7-alpine"),
		natsclient.WithStartTimeout(time.Minute),
	)
}

func (s *StoreIntegrationSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	// a fresh bucket per test keeps List assertions independent
	s.bucket++
	var err error
	s.store, err = NewStore(s.ctx, s.testClient.Client, WithBucket(fmt.Sprintf("programs_%d", s.bucket)))
	s.Require().NoError(err)
}

func (s *StoreIntegrationSuite) TearDownTest() {
	s.cancel()
}

func (s *StoreIntegrationSuite) TestCreateGetLoad() {
	prog := testutil.LinearProgram(s.T(), "hello", "world")
	doc, err := NewDocument("linear", "Linear", prog)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Create(s.ctx, doc))

	got, err := s.store.Get(s.ctx, "linear")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)

	loaded, err := got.Load()
	s.Require().NoError(err)
	s.Equal(prog.Len(), loaded.Len())

	err = s.store.Create(s.ctx, doc)
	s.ErrorIs(err, ErrExists)
}

func (s *StoreIntegrationSuite) TestOptimisticConcurrency() {
	s.Require().NoError(s.store.Create(s.ctx, sampleDoc("shared")))

	first, err := s.store.Get(s.ctx, "shared")
	s.Require().NoError(err)
	second, err := s.store.Get(s.ctx, "shared")
	s.Require().NoError(err)

	first.Name = "first"
	s.Require().NoError(s.store.Update(s.ctx, first))

	second.Name = "second"
	s.ErrorIs(s.store.Update(s.ctx, second), ErrVersionConflict)
}

func (s *StoreIntegrationSuite) TestListDeleteHistory() {
	for _, id := range []string{"b", "a"} {
		s.Require().NoError(s.store.Create(s.ctx, sampleDoc(id)))
	}

	docs, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal("a", docs[0].ID)

	doc := docs[0]
	doc.Description = "edited"
	s.Require().NoError(s.store.Update(s.ctx, doc))
	s.Require().NoError(s.store.Delete(s.ctx, "a"))

	_, err = s.store.Get(s.ctx, "a")
	s.ErrorIs(err, cerrors.ErrKeyNotFound)

	hist, err := s.store.History(s.ctx, "a")
	s.Require().NoError(err)
	s.Len(hist, 2)

	docs, err = s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func (s *StoreIntegrationSuite) TestWatch() {
	changes, err := s.store.Watch(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Create(s.ctx, sampleDoc("watched")))
	s.Require().NoError(s.store.Delete(s.ctx, "watched"))

	for _, deleted := range []bool{false, true} {
		select {
		case c := <-changes:
			s.Equal("watched", c.ID)
			s.Equal(deleted, c.Deleted)
		case <-time.After(5 * time.Second):
			s.FailNow("no change received")
		}
	}
}

func TestStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(StoreIntegrationSuite))
}
