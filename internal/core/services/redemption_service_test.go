package services

import (
	"sync"
	"testing"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedeem_ExternalCreatesReimbursement(t *testing.T) {
	h := newHarness(t)
	emp := h.employee(true)
	dist := h.distributor("external")
	v := h.voucher(emp.ID, 10)

	res, err := h.redemption.Redeem(h.ctx, "  "+v.Code[:3]+lower(v.Code[3:])+" ", dist.ID)
	require.NoError(t, err)
	require.True(t, res.Valid, res.Message)
	assert.Equal(t, "redeemed", res.Voucher.Status)
	assert.Equal(t, emp.Name, res.Voucher.EmployeeName)
	require.NotNil(t, res.ReimbursementID)

	rb, err := h.rbRepo.GetByID(h.ctx, *res.ReimbursementID)
	require.NoError(t, err)
	assert.Equal(t, "to_validate", rb.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(rb.Amount))
	assert.Equal(t, dist.PixKey, rb.PixKey)
	assert.Equal(t, dist.Bank, rb.Bank)
	assert.Equal(t, v.ID, rb.VoucherID)

	history, err := h.historyRepo.GetByVoucherID(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, dist.Name, history.DistributorName)
	assert.Equal(t, emp.Document, history.EmployeeDocument)

	redeemed := h.pub.ofType(events.VoucherRedeemed)
	require.Len(t, redeemed, 1)
	assert.Equal(t, dist.ID, redeemed[0].DistributorID)
	assert.Len(t, h.pub.ofType(events.ReimbursementCreated), 1)

	rbHistory, err := h.rbRepo.ListHistory(h.ctx, rb.ID)
	require.NoError(t, err)
	require.Len(t, rbHistory, 1)
	assert.Nil(t, rbHistory[0].ActorID)
	assert.Equal(t, models.HistoryCreated, rbHistory[0].Action)
}

func TestRedeem_InternalCreatesNoReimbursement(t *testing.T) {
	h := newHarness(t)
	v := h.voucher(h.employee(true).ID, 10)
	dist := h.distributor("internal")

	res, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.Nil(t, res.ReimbursementID)

	exists, err := h.rbRepo.ExistsForVoucher(h.ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedeem_AutoReimbursementDisabled(t *testing.T) {
	h := newHarness(t)
	h.setSetting(KeyAutoReimbursement, "false")
	v := h.voucher(h.employee(true).ID, 10)

	res, err := h.redemption.Redeem(h.ctx, v.Code, h.distributor("external").ID)
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.Nil(t, res.ReimbursementID)
}

func TestRedeem_Rejections(t *testing.T) {
	h := newHarness(t)
	emp := h.employee(true)
	dist := h.distributor("external")

	t.Run("not found", func(t *testing.T) {
		res, err := h.redemption.Redeem(h.ctx, "VG-NONE00", dist.ID)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonNotFound, res.Reason)
	})

	t.Run("already redeemed names the redeemer", func(t *testing.T) {
		v := h.voucher(emp.ID, 10)
		_, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
		require.NoError(t, err)

		res, err := h.redemption.Redeem(h.ctx, v.Code, h.distributor("external").ID)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonAlreadyRedeemed, res.Reason)
		require.NotNil(t, res.RedeemedBy)
		assert.Equal(t, dist.ID, res.RedeemedBy.DistributorID)
		assert.Equal(t, dist.Name, res.RedeemedBy.DistributorName)
	})

	t.Run("expired status", func(t *testing.T) {
		v := h.voucher(emp.ID, 10)
		require.NoError(t, h.db.Model(v).Update("status", "expired").Error)

		res, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
		require.NoError(t, err)
		assert.Equal(t, ReasonExpired, res.Reason)
	})

	t.Run("other month", func(t *testing.T) {
		v := h.voucher(emp.ID, 40)
		require.NoError(t, h.db.Model(v).Update("reference_month", "2024-04").Error)

		res, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
		require.NoError(t, err)
		assert.Equal(t, ReasonWrongMonth, res.Reason)

		got, err := h.voucherRepo.GetByID(h.ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "active", got.Status)
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := h.redemption.Redeem(h.ctx, "   ", dist.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestRedeem_DistributorState(t *testing.T) {
	h := newHarness(t)
	v := h.voucher(h.employee(true).ID, 10)

	_, err := h.redemption.Redeem(h.ctx, v.Code, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	dist := h.distributor("external")
	require.NoError(t, h.db.Model(dist).Update("is_active", false).Error)
	_, err = h.redemption.Redeem(h.ctx, v.Code, dist.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := h.voucherRepo.GetByID(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)
}

func TestRedeem_ValidThroughExpiryDate(t *testing.T) {
	h := newHarness(t)
	emp := h.employee(true)
	dist := h.distributor("external")
	v := h.voucher(emp.ID, 0)

	// late on the expiry date
	h.now = time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC)
	res, err := h.redemption.Inspect(h.ctx, v.Code)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	// first minute of the next day
	h.now = time.Date(2024, 5, 11, 0, 1, 0, 0, time.UTC)
	res, err = h.redemption.Redeem(h.ctx, v.Code, dist.ID)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonExpired, res.Reason)

	got, err := h.voucherRepo.GetByID(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "expired", got.Status, "a late check expires the voucher")
}

func TestRedeem_ConcurrentCallersOneWinner(t *testing.T) {
	h := newHarness(t)
	v := h.voucher(h.employee(true).ID, 10)
	first := h.distributor("external")
	second := h.distributor("external")

	results := make([]*RedemptionResult, 2)
	var wg sync.WaitGroup
	for i, d := range []*models.Distributor{first, second} {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			res, err := h.redemption.Redeem(h.ctx, v.Code, id)
			assert.NoError(t, err)
			results[i] = res
		}(i, d.ID)
	}
	wg.Wait()

	valid := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Valid {
			valid++
		} else {
			assert.Contains(t, []string{ReasonUnavailable, ReasonAlreadyRedeemed}, r.Reason)
		}
	}
	assert.Equal(t, 1, valid)

	var claims int64
	require.NoError(t, h.db.Model(&models.Reimbursement{}).Where("voucher_id = ?", v.ID).Count(&claims).Error)
	assert.Equal(t, int64(1), claims)
	assert.Len(t, h.pub.ofType(events.VoucherRedeemed), 1)
}

func TestInspect_DoesNotRedeem(t *testing.T) {
	h := newHarness(t)
	v := h.voucher(h.employee(true).ID, 10)

	res, err := h.redemption.Inspect(h.ctx, v.Code)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	got, err := h.voucherRepo.GetByID(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)
	assert.Empty(t, h.pub.ofType(events.VoucherRedeemed))
}

func TestRedemptionHistory(t *testing.T) {
	h := newHarness(t)
	emp := h.employee(true)
	dist := h.distributor("internal")
	for i := 0; i < 3; i++ {
		v := h.voucher(emp.ID, 10)
		_, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
		require.NoError(t, err)
	}

	page, err := h.redemption.History(h.ctx, dist.ID, "2024-05", pageOf(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Meta.Total)
	assert.Len(t, page.Redemptions, 2)
	assert.True(t, page.Meta.HasNext)

	_, err = h.redemption.History(h.ctx, dist.ID, "05-2024", pageOf(1, 2))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDistributorDashboard(t *testing.T) {
	h := newHarness(t)
	emp := h.employee(true)
	dist := h.distributor("internal")
	for i := 0; i < 3; i++ {
		v := h.voucher(emp.ID, 10)
		_, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
		require.NoError(t, err)
	}
	past := []struct {
		month string
		at    time.Time
	}{
		{"2024-05", time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
		{"2024-01", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)},
		{"2023-11", time.Date(2023, 11, 20, 9, 0, 0, 0, time.UTC)},
	}
	for _, p := range past {
		v := h.voucher(emp.ID, 10)
		require.NoError(t, h.historyRepo.Create(h.ctx, &models.RedemptionHistory{
			VoucherID:      v.ID,
			EmployeeID:     emp.ID,
			DistributorID:  dist.ID,
			Code:           v.Code,
			ReferenceMonth: p.month,
			RedeemedAt:     p.at,
		}))
	}

	d, err := h.redemption.Dashboard(h.ctx, dist.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Today)
	assert.Equal(t, int64(4), d.ThisMonth)
	require.Len(t, d.Recent, 5)
	assert.Equal(t, "2024-01", d.Recent[4].ReferenceMonth, "newest first")
	require.Len(t, d.Monthly, 2, "only the last six reference months")
	assert.Equal(t, "2024-01", d.Monthly[0].ReferenceMonth)
	assert.Equal(t, int64(1), d.Monthly[0].Total)
	assert.Equal(t, "2024-05", d.Monthly[1].ReferenceMonth)
	assert.Equal(t, int64(4), d.Monthly[1].Total)

	quiet, err := h.redemption.Dashboard(h.ctx, h.distributor("external").ID)
	require.NoError(t, err)
	assert.Zero(t, quiet.ThisMonth)
	assert.Empty(t, quiet.Recent)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestRedeem_UsesBusinessTimezone(t *testing.T) {
	h := newHarness(t)
	brt := time.FixedZone("BRT", -3*3600)

	svc := NewRedemptionService(h.voucherRepo, h.historyRepo, h.distRepo, h.reimbursement, h.settings, h.pub, brt, zaptest.NewLogger(t))
	assert.Equal(t, brt, svc.now().Location())

	// 21:30 on 31 May in Brazil is already 1 June in UTC
	instant := time.Date(2024, 5, 31, 21, 30, 0, 0, brt)
	v := &models.Voucher{
		Code:           "VG-TZ0001",
		EmployeeID:     h.employee(true).ID,
		ReferenceMonth: "2024-05",
		Status:         "active",
		IssuedAt:       time.Date(2024, 5, 1, 9, 0, 0, 0, brt),
		ExpiresAt:      time.Date(2024, 5, 31, 9, 0, 0, 0, brt),
	}
	require.NoError(t, h.db.Create(v).Error)
	dist := h.distributor("external")

	svc.now = func() time.Time { return instant.UTC() }
	res, err := svc.Inspect(h.ctx, v.Code)
	require.NoError(t, err)
	assert.Equal(t, ReasonWrongMonth, res.Reason, "a host clock in UTC sees June")

	svc.now = func() time.Time { return instant }
	res, err = svc.Redeem(h.ctx, v.Code, dist.ID)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Message)
}

func TestServiceClocksFollowLocation(t *testing.T) {
	h := newHarness(t)
	brt := time.FixedZone("BRT", -3*3600)
	log := zaptest.NewLogger(t)

	vs := NewVoucherService(h.voucherRepo, h.employeeRepo, h.settings, h.pub, h.audit, brt, log)
	rs := NewReimbursementService(h.rbRepo, h.voucherRepo, h.distRepo, h.adminRepo, h.store, h.settings, h.pub, h.audit, brt, log)
	assert.Equal(t, brt, vs.now().Location())
	assert.Equal(t, brt, rs.now().Location())
	assert.Equal(t, time.Local, clockIn(nil)().Location())

	vs.now = func() time.Time { return time.Date(2024, 5, 31, 22, 0, 0, 0, brt) }
	issued, err := vs.IssueOne(h.ctx, h.employee(true).ID, admin)
	require.NoError(t, err)
	assert.Equal(t, "2024-05", issued.ReferenceMonth)
}
