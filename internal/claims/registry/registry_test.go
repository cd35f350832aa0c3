package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"claimreg/internal/claims/models"
	"claimreg/internal/claims/registry"
	"claimreg/internal/claims/sequence"
	"claimreg/internal/claims/store"
	id "claimreg/pkg/domain"
)

const (
	alice id.AccountID = "alice"
	bob   id.AccountID = "bob"
	carol id.AccountID = "carol"
)

// countingSequence records how often the registry reads the height.
type countingSequence struct {
	*sequence.Manual
	calls int
}

func (c *countingSequence) Current(ctx context.Context) (uint64, error) {
	c.calls++
	return c.Manual.Current(ctx)
}

type failingStore struct {
	*store.InMemory
	getErr error
}

func (f *failingStore) Get(ctx context.Context, fingerprint id.Fingerprint) (*models.Claim, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.InMemory.Get(ctx, fingerprint)
}

type RegistrySuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.InMemory
	seq      *countingSequence
	registry *registry.Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.seq = &countingSequence{Manual: sequence.NewManual(10)}
	var err error
	s.registry, err = registry.New(s.store, s.seq)
	s.Require().NoError(err)
}

func fp(s string) id.Fingerprint {
	return id.FingerprintFromBytes([]byte(s))
}

func (s *RegistrySuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := registry.New(nil, s.seq)
		s.ErrorContains(err, "claim store is required")
	})

	s.Run("nil sequence returns error", func() {
		_, err := registry.New(s.store, nil)
		s.ErrorContains(err, "sequence source is required")
	})

	s.Run("unknown policy returns error", func() {
		_, err := registry.New(s.store, s.seq, registry.WithTransferSequencePolicy("sometimes"))
		s.Error(err)
	})

	s.Run("defaults to preserving the sequence", func() {
		s.Equal(registry.PreserveSequence, s.registry.TransferPolicy())
	})
}

func (s *RegistrySuite) TestCreate() {
	s.Run("absent fingerprint is registered at the current sequence", func() {
		event, err := s.registry.Create(s.ctx, alice, fp("abc"))
		s.Require().NoError(err)
		s.Equal(models.ClaimCreated(alice, fp("abc"), 10), event)

		claim, err := s.store.Get(s.ctx, fp("abc"))
		s.Require().NoError(err)
		s.Equal(alice, claim.Owner)
		s.Equal(uint64(10), claim.Sequence)
	})

	s.Run("present fingerprint fails AlreadyExists for any caller", func() {
		before := s.store.Snapshot()
		for _, caller := range []id.AccountID{alice, bob} {
			event, err := s.registry.Create(s.ctx, caller, fp("abc"))
			s.Require().ErrorIs(err, registry.ErrAlreadyExists)
			s.Equal(models.Event{}, event)
		}
		s.Equal(before, s.store.Snapshot())
	})

	s.Run("empty fingerprint is an ordinary key", func() {
		_, err := s.registry.Create(s.ctx, bob, fp(""))
		s.Require().NoError(err)
		_, err = s.registry.Create(s.ctx, alice, fp(""))
		s.Require().ErrorIs(err, registry.ErrAlreadyExists)
	})
}

func (s *RegistrySuite) TestCreateRace() {
	// Insert losing a race against a concurrent writer surfaces as AlreadyExists.
	racing := &racingStore{InMemory: s.store}
	reg, err := registry.New(racing, s.seq)
	s.Require().NoError(err)

	_, err = reg.Create(s.ctx, alice, fp("raced"))
	s.Require().ErrorIs(err, registry.ErrAlreadyExists)

	claim, err := s.store.Get(s.ctx, fp("raced"))
	s.Require().NoError(err)
	s.Equal(bob, claim.Owner)
}

type racingStore struct {
	*store.InMemory
}

func (r *racingStore) Insert(ctx context.Context, claim *models.Claim) error {
	_ = r.InMemory.Insert(ctx, models.NewClaim(claim.Fingerprint, bob, 1))
	return r.InMemory.Insert(ctx, claim)
}

func (s *RegistrySuite) TestRemoveAndTransferOnAbsent() {
	before := s.store.Snapshot()

	_, err := s.registry.Remove(s.ctx, alice, fp("ghost"))
	s.Require().ErrorIs(err, registry.ErrNotFound)

	_, err = s.registry.Transfer(s.ctx, alice, fp("ghost"), bob)
	s.Require().ErrorIs(err, registry.ErrNotFound)

	s.Equal(before, s.store.Snapshot())
}

func (s *RegistrySuite) TestNonOwnerIsRejected() {
	_, err := s.registry.Create(s.ctx, alice, fp("abc"))
	s.Require().NoError(err)
	before := s.store.Snapshot()

	_, err = s.registry.Remove(s.ctx, bob, fp("abc"))
	s.Require().ErrorIs(err, registry.ErrUnauthorized)

	_, err = s.registry.Transfer(s.ctx, bob, fp("abc"), bob)
	s.Require().ErrorIs(err, registry.ErrUnauthorized)

	s.Equal(before, s.store.Snapshot())
}

func (s *RegistrySuite) TestTransferPreservesSequence() {
	_, err := s.registry.Create(s.ctx, alice, fp("abc"))
	s.Require().NoError(err)
	s.Require().NoError(s.seq.Set(99))
	callsBefore := s.seq.calls

	event, err := s.registry.Transfer(s.ctx, alice, fp("abc"), bob)
	s.Require().NoError(err)
	s.Equal(models.ClaimOwnerChanged(alice, bob, fp("abc"), 10), event)
	s.Equal(callsBefore, s.seq.calls, "transfer must not read the sequence source")

	claim, err := s.store.Get(s.ctx, fp("abc"))
	s.Require().NoError(err)
	s.Equal(bob, claim.Owner)
	s.Equal(uint64(10), claim.Sequence)
}

func (s *RegistrySuite) TestTransferRefreshPolicy() {
	reg, err := registry.New(s.store, s.seq, registry.WithTransferSequencePolicy(registry.RefreshSequence))
	s.Require().NoError(err)

	_, err = reg.Create(s.ctx, alice, fp("abc"))
	s.Require().NoError(err)
	s.Require().NoError(s.seq.Set(99))

	event, err := reg.Transfer(s.ctx, alice, fp("abc"), bob)
	s.Require().NoError(err)
	s.Equal(uint64(99), event.Sequence)

	claim, err := s.store.Get(s.ctx, fp("abc"))
	s.Require().NoError(err)
	s.Equal(uint64(99), claim.Sequence)
}

func (s *RegistrySuite) TestTransferToSelf() {
	_, err := s.registry.Create(s.ctx, alice, fp("abc"))
	s.Require().NoError(err)

	event, err := s.registry.Transfer(s.ctx, alice, fp("abc"), alice)
	s.Require().NoError(err)
	s.Equal(alice, event.Owner)
	s.Equal(alice, event.NewOwner)
}

func (s *RegistrySuite) TestRoundTrip() {
	_, err := s.registry.Create(s.ctx, alice, fp("f"))
	s.Require().NoError(err)
	_, err = s.registry.Transfer(s.ctx, alice, fp("f"), bob)
	s.Require().NoError(err)
	_, err = s.registry.Remove(s.ctx, bob, fp("f"))
	s.Require().NoError(err)

	s.Empty(s.store.Snapshot())

	// A removed fingerprint can be claimed again by anyone.
	s.Require().NoError(s.seq.Set(12))
	event, err := s.registry.Create(s.ctx, carol, fp("f"))
	s.Require().NoError(err)
	s.Equal(uint64(12), event.Sequence)
}

// TestScenario walks the documented example: sequence 10 then 99, three
// identities, five calls.
func (s *RegistrySuite) TestScenario() {
	event, err := s.registry.Create(s.ctx, alice, fp("abc"))
	s.Require().NoError(err)
	s.Equal(models.ClaimCreated(alice, fp("abc"), 10), event)
	s.Equal(map[id.Fingerprint]models.Claim{fp("abc"): {Fingerprint: fp("abc"), Owner: alice, Sequence: 10}}, s.store.Snapshot())

	s.Require().NoError(s.seq.Set(99))
	event, err = s.registry.Transfer(s.ctx, alice, fp("abc"), bob)
	s.Require().NoError(err)
	s.Equal(models.ClaimOwnerChanged(alice, bob, fp("abc"), 10), event)
	s.Equal(map[id.Fingerprint]models.Claim{fp("abc"): {Fingerprint: fp("abc"), Owner: bob, Sequence: 10}}, s.store.Snapshot())

	_, err = s.registry.Transfer(s.ctx, alice, fp("abc"), carol)
	s.Require().ErrorIs(err, registry.ErrUnauthorized)
	s.Equal(map[id.Fingerprint]models.Claim{fp("abc"): {Fingerprint: fp("abc"), Owner: bob, Sequence: 10}}, s.store.Snapshot())

	event, err = s.registry.Remove(s.ctx, bob, fp("abc"))
	s.Require().NoError(err)
	s.Equal(models.ClaimRemoved(bob, fp("abc"), 10), event)
	s.Empty(s.store.Snapshot())

	_, err = s.registry.Remove(s.ctx, bob, fp("abc"))
	s.Require().ErrorIs(err, registry.ErrNotFound)
}

func (s *RegistrySuite) TestStoreFailuresAreNotDomainErrors() {
	boom := errors.New("connection reset")
	reg, err := registry.New(&failingStore{InMemory: s.store, getErr: boom}, s.seq)
	s.Require().NoError(err)

	_, err = reg.Create(s.ctx, alice, fp("abc"))
	s.Require().ErrorIs(err, boom)
	s.NotErrorIs(err, registry.ErrAlreadyExists)

	_, err = reg.Remove(s.ctx, alice, fp("abc"))
	s.Require().ErrorIs(err, boom)
	s.NotErrorIs(err, registry.ErrNotFound)
}

func TestParseTransferSequencePolicy(t *testing.T) {
	for in, want := range map[string]registry.TransferSequencePolicy{
		"":         registry.PreserveSequence,
		"preserve": registry.PreserveSequence,
		"refresh":  registry.RefreshSequence,
	} {
		got, err := registry.ParseTransferSequencePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseTransferSequencePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := registry.ParseTransferSequencePolicy("always"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
