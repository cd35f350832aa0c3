//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"claimreg/internal/claims/events"
	"claimreg/internal/claims/models"
	id "claimreg/pkg/domain"
	txcontext "claimreg/pkg/platform/tx"
	"claimreg/pkg/testutil/containers"
)

type OutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	sink     *events.OutboxSink
	outbox   *events.PostgresOutbox
	tx       *txcontext.Postgres
}

func TestOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.sink = events.NewOutboxSink(s.postgres.DB)
	s.outbox = events.NewPostgresOutbox(s.postgres.DB)
	s.tx = txcontext.NewPostgres(s.postgres.DB, 0)
}

func (s *OutboxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "claim_outbox"))
}

func (s *OutboxSuite) TestRolledBackAppendLeavesNoEntry() {
	ctx := context.Background()
	fp := id.FingerprintFromBytes([]byte{0x01})
	boom := errors.New("abort")

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.sink.Append(ctx, models.ClaimCreated("alice", fp, 1)))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	n, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *OutboxSuite) TestProcessMarksPublishedInOrder() {
	ctx := context.Background()
	fp := id.FingerprintFromBytes([]byte{0xab})
	s.Require().NoError(s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.sink.Append(ctx, models.ClaimCreated("alice", fp, 10)); err != nil {
			return err
		}
		return s.sink.Append(ctx, models.ClaimOwnerChanged("alice", "bob", fp, 10))
	}))

	var kinds []models.EventKind
	n, err := s.outbox.Process(ctx, 10, func(_ context.Context, e events.OutboxEntry) error {
		var event models.Event
		s.Require().NoError(json.Unmarshal(e.Payload, &event))
		s.Equal(fp, event.Fingerprint)
		s.Equal([]byte("ab"), e.Key)
		kinds = append(kinds, e.Kind)
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal([]models.EventKind{models.EventClaimCreated, models.EventClaimOwnerChanged}, kinds)

	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *OutboxSuite) TestListenerWakesOnCommit() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listener, err := events.ListenPgx(ctx, s.postgres.URL)
	s.Require().NoError(err)
	defer listener.Close(context.Background())

	fp := id.FingerprintFromBytes([]byte{0x02})
	s.Require().NoError(s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.sink.Append(ctx, models.ClaimCreated("alice", fp, 1))
	}))

	s.Require().NoError(listener.Wait(ctx))
}
