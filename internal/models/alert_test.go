package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertKindValid(t *testing.T) {
	assert.True(t, KindNotFeelingWell.Valid())
	assert.True(t, KindNeedHelp.Valid())
	assert.True(t, KindWantToTalk.Valid())
	assert.False(t, AlertKind("panic").Valid())
	assert.False(t, AlertKind("").Valid())
}

func TestInitialPriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, KindNotFeelingWell.InitialPriority())
	assert.Equal(t, PriorityMedium, KindNeedHelp.InitialPriority())
	assert.Equal(t, PriorityLow, KindWantToTalk.InitialPriority())
}

func TestNextPriority(t *testing.T) {
	assert.Equal(t, PriorityMedium, NextPriority(PriorityLow))
	assert.Equal(t, PriorityHigh, NextPriority(PriorityMedium))
	assert.Equal(t, PriorityCritical, NextPriority(PriorityHigh))
	// Critical is the top of the ladder.
	assert.Equal(t, PriorityCritical, NextPriority(PriorityCritical))
}

func TestExpectedPriorityBeforeLevel(t *testing.T) {
	assert.Equal(t, PriorityLow, ExpectedPriorityBeforeLevel(1))
	assert.Equal(t, PriorityMedium, ExpectedPriorityBeforeLevel(2))
	assert.Equal(t, PriorityHigh, ExpectedPriorityBeforeLevel(3))
	assert.Equal(t, Priority(""), ExpectedPriorityBeforeLevel(0))
	assert.Equal(t, Priority(""), ExpectedPriorityBeforeLevel(4))
}

func TestIsOverdue(t *testing.T) {
	now := time.Now()
	alert := Alert{
		Status:    StatusActive,
		CreatedAt: now.Add(-time.Hour),
	}
	assert.True(t, alert.IsOverdue(now))

	fresh := Alert{Status: StatusActive, CreatedAt: now.Add(-10 * time.Minute)}
	assert.False(t, fresh.IsOverdue(now))

	answered := Alert{
		Status:    StatusActive,
		CreatedAt: now.Add(-time.Hour),
		Responses: []Response{{ResponderID: 7}},
	}
	assert.False(t, answered.IsOverdue(now))

	resolved := Alert{Status: StatusResolved, CreatedAt: now.Add(-time.Hour)}
	assert.False(t, resolved.IsOverdue(now))
}

func TestHasResponseFrom(t *testing.T) {
	alert := Alert{Responses: []Response{{ResponderID: 3}, {ResponderID: 9}}}
	assert.True(t, alert.HasResponseFrom(9))
	assert.False(t, alert.HasResponseFrom(4))
}

func TestValidResponseType(t *testing.T) {
	assert.True(t, ValidResponseType(ResponseTypeText))
	assert.True(t, ValidResponseType(ResponseTypeCall))
	assert.True(t, ValidResponseType(ResponseTypeVisit))
	assert.False(t, ValidResponseType("email"))
}
