package services

import (
	"context"
	"testing"
	"time"

	"consigaz-valegas/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticConfig map[string]string

func (c staticConfig) Get(_ context.Context, key, def string) string {
	if v, ok := c[key]; ok {
		return v
	}
	return def
}

func (c staticConfig) Invalidate(string) {}

func TestSettingsService_CachesUntilTTL(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "30", h.settings.Get(h.ctx, KeyValidityDays, "1"))

	// a write that skips the service is invisible until the entry expires
	_, err := h.settingRepo.UpdateValue(h.ctx, KeyValidityDays, "45")
	require.NoError(t, err)
	assert.Equal(t, "30", h.settings.Get(h.ctx, KeyValidityDays, "1"))

	h.now = h.now.Add(configCacheTTL + time.Second)
	assert.Equal(t, "45", h.settings.Get(h.ctx, KeyValidityDays, "1"))
}

func TestSettingsService_Invalidate(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "1", h.settings.Get(h.ctx, KeyMonthlyQuota, "9"))

	_, err := h.settingRepo.UpdateValue(h.ctx, KeyMonthlyQuota, "3")
	require.NoError(t, err)
	h.settings.Invalidate("other:")
	assert.Equal(t, "1", h.settings.Get(h.ctx, KeyMonthlyQuota, "9"))

	h.settings.Invalidate(configCachePrefix)
	assert.Equal(t, "3", h.settings.Get(h.ctx, KeyMonthlyQuota, "9"))
}

func TestSettingsService_MissingKeyUsesDefault(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "fallback", h.settings.Get(h.ctx, "nao_existe", "fallback"))
}

func TestSettingsService_Update(t *testing.T) {
	h := newHarness(t)
	h.settings.Get(h.ctx, KeyMonthlyQuota, "1")

	s, err := h.settings.Update(h.ctx, KeyMonthlyQuota, " 2 ", admin)
	require.NoError(t, err)
	assert.Equal(t, "2", s.Value)
	assert.Equal(t, "2", h.settings.Get(h.ctx, KeyMonthlyQuota, "1"), "update invalidates the cache")
	assert.Equal(t, 2, NewRules(h.settings).MonthlyQuota(h.ctx))
	assert.Contains(t, h.auditActions(), "update_setting")

	_, err = h.settings.Update(h.ctx, "nao_existe", "1", admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	invalid := map[string]string{
		KeyMonthlyQuota:         "0",
		KeyValidityDays:         "abc",
		KeyGenerationDay:        "32",
		KeyReminderOffsets:      "x,-1",
		KeyDefaultReimbursement: "-5",
		KeyAutoReimbursement:    "sim",
	}
	for key, value := range invalid {
		_, err := h.settings.Update(h.ctx, key, value, admin)
		assert.ErrorIs(t, err, domain.ErrValidation, "%s=%s", key, value)
	}
	_, err = h.settings.Update(h.ctx, KeyMonthlyQuota, "  ", admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := h.settings.List(h.ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(defaultTestSettings))
}

func TestRules(t *testing.T) {
	ctx := context.Background()

	defaults := NewRules(staticConfig{})
	assert.Equal(t, 1, defaults.MonthlyQuota(ctx))
	assert.Equal(t, 30, defaults.ValidityDays(ctx))
	assert.Equal(t, 1, defaults.GenerationDay(ctx))
	assert.Equal(t, []int{7, 3, 1}, defaults.ReminderOffsets(ctx))
	assert.Equal(t, "100.00", defaults.DefaultReimbursementAmount(ctx).StringFixed(2))
	assert.True(t, defaults.AutoReimbursement(ctx))

	malformed := NewRules(staticConfig{
		KeyMonthlyQuota:         "-2",
		KeyValidityDays:         "trinta",
		KeyGenerationDay:        "40",
		KeyReminderOffsets:      "nunca",
		KeyDefaultReimbursement: "cem",
		KeyAutoReimbursement:    "talvez",
	})
	assert.Equal(t, 1, malformed.MonthlyQuota(ctx))
	assert.Equal(t, 30, malformed.ValidityDays(ctx))
	assert.Equal(t, 1, malformed.GenerationDay(ctx))
	assert.Equal(t, []int{7, 3, 1}, malformed.ReminderOffsets(ctx))
	assert.Equal(t, "100.00", malformed.DefaultReimbursementAmount(ctx).StringFixed(2))
	assert.True(t, malformed.AutoReimbursement(ctx))

	custom := NewRules(staticConfig{
		KeyGenerationDay:        "5",
		KeyDefaultReimbursement: "95.555",
		KeyAutoReimbursement:    "false",
	})
	assert.Equal(t, 5, custom.GenerationDay(ctx))
	assert.Equal(t, "95.56", custom.DefaultReimbursementAmount(ctx).StringFixed(2))
	assert.False(t, custom.AutoReimbursement(ctx))
}

func TestParseOffsets(t *testing.T) {
	assert.Equal(t, []int{7, 3, 1}, parseOffsets("7, 3,1"))
	assert.Equal(t, []int{5, 2}, parseOffsets("5,5,0,2,x,-3"))
	assert.Empty(t, parseOffsets(""))
}
