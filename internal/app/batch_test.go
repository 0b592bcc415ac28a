package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_sync/internal/domain"
)

func TestPlaceTarget(t *testing.T) {
	tg := PlaceTarget("ChIJ123")
	assert.Equal(t, "ChIJ123", tg.EntityID)
	assert.Equal(t, "https://search.google.com/local/writereview?placeid=ChIJ123", tg.ProfileURL)
	assert.Equal(t, "ChIJ123", placeIDFromURL(tg.ProfileURL))
}

func TestSubmit_AttachFailureSkipsEntity(t *testing.T) {
	a, b, c := PlaceTarget("A"), PlaceTarget("B"), PlaceTarget("C")
	api := &fakeReviewsAPI{attachErrs: map[string]error{b.ProfileURL: errors.New("invalid profile")}}
	var missed []string
	s := NewBatchSubmitter(api, "USA", "all")

	got, err := s.Submit(context.Background(), []Target{a, b, c}, func(id string, _ error) { missed = append(missed, id) })
	require.NoError(t, err)
	assert.Equal(t, 2, got.Expected())
	assert.Equal(t, []string{"B"}, missed)
	assert.True(t, api.committed)
	require.Len(t, api.attached, 2)
	assert.Equal(t, "USA", api.attached[0].Country)
	assert.Equal(t, "all", api.attached[0].ReviewsLimit)
}

func TestSubmit_NoJobsIsDataAbsent(t *testing.T) {
	a := PlaceTarget("A")
	api := &fakeReviewsAPI{attachErrs: map[string]error{a.ProfileURL: errors.New("nope")}}
	_, err := NewBatchSubmitter(api, "USA", "").Submit(context.Background(), []Target{a}, nil)

	var absent *domain.DataAbsentError
	require.ErrorAs(t, err, &absent)
	assert.False(t, api.committed)
}

func TestSubmit_CommitFailureAborts(t *testing.T) {
	api := &fakeReviewsAPI{commitErr: &domain.ProtocolError{Op: "commit batch", Detail: "batch already committed"}}
	_, err := NewBatchSubmitter(api, "USA", "").Submit(context.Background(), []Target{PlaceTarget("A")}, nil)

	var perr *domain.ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestSubmit_CreateFailure(t *testing.T) {
	api := &fakeReviewsAPI{createErr: &domain.TransportError{Op: "create batch", Status: 401, Err: domain.ErrUnauthorized}}
	_, err := NewBatchSubmitter(api, "USA", "").Submit(context.Background(), []Target{PlaceTarget("A")}, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, api.attached)
}

func TestProfileTarget(t *testing.T) {
	assert.Equal(t, "P1", ProfileTarget("https://search.google.com/local/writereview?placeid=P1").EntityID)
	u := "https://www.facebook.com/acme/reviews"
	assert.Equal(t, Target{EntityID: u, ProfileURL: u}, ProfileTarget(u))
}
