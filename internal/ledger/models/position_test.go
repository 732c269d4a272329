package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPosition(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("compliance needs both flags", func(t *testing.T) {
		p := NewPosition("0xabc", now)
		p.KYCPassed = true
		assert.False(t, p.Compliant())
		p.AMLPassed = true
		assert.True(t, p.Compliant())
	})

	t.Run("clone does not share holdings", func(t *testing.T) {
		p := NewPosition("0xabc", now)
		release := now.Add(time.Hour)
		h := p.Holding("US0378331005")
		h.Committed = decimal.NewFromInt(10)
		h.LockupRelease = &release

		c := p.Clone()
		c.Holding("US0378331005").Committed = decimal.NewFromInt(99)
		*c.Holdings["US0378331005"].LockupRelease = now

		assert.True(t, decimal.NewFromInt(10).Equal(p.Committed("US0378331005")))
		assert.Equal(t, release, *p.Holdings["US0378331005"].LockupRelease)
	})

	t.Run("lockup", func(t *testing.T) {
		p := NewPosition("0xabc", now)
		assert.False(t, p.Locked("US0378331005", now))
		release := now.Add(24 * time.Hour)
		p.Holding("US0378331005").LockupRelease = &release
		assert.True(t, p.Locked("US0378331005", now))
		assert.False(t, p.Locked("US0378331005", release))
	})

	t.Run("jurisdiction normalization", func(t *testing.T) {
		assert.Equal(t, "DE", NormalizeJurisdiction(" de "))
	})
}
