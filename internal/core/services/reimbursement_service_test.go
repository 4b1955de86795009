package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func (h *harness) admin() {
	require.NoError(h.t, h.db.Create(&models.AdminUser{
		ID:       admin.ID,
		Username: "ana",
		Name:     admin.Name,
		Email:    "ana@example.com",
		Password: "hash",
	}).Error)
}

func TestReimbursement_ApproveThenPay(t *testing.T) {
	h := newHarness(t)
	rb := h.redeemedClaim()

	got, err := h.reimbursement.Approve(h.ctx, rb.ID, " looks fine ", admin)
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Status)
	require.NotNil(t, got.ApprovedAt)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, admin.ID, *got.ApprovedBy)

	got, err = h.reimbursement.MarkPaid(h.ctx, rb.ID, "", admin)
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)
	require.NotNil(t, got.PaidAt)

	require.Len(t, got.History, 3)
	assert.Equal(t, models.HistoryCreated, got.History[0].Action)
	assert.Equal(t, "system", got.History[0].ActorName)
	assert.Equal(t, models.HistoryApproved, got.History[1].Action)
	assert.Equal(t, "to_validate", got.History[1].PreviousStatus)
	assert.Equal(t, "looks fine", got.History[1].Note)
	assert.Equal(t, admin.Name, got.History[1].ActorName)
	assert.Equal(t, models.HistoryPaid, got.History[2].Action)
	assert.Equal(t, "paid", got.History[2].NewStatus)

	assert.Len(t, h.pub.ofType(events.ReimbursementApproved), 1)
	assert.Len(t, h.pub.ofType(events.ReimbursementPaid), 1)
	assert.Subset(t, h.auditActions(), []string{"approved_reimbursement", "paid_reimbursement"})
}

func TestReimbursement_Reject(t *testing.T) {
	h := newHarness(t)
	rb := h.redeemedClaim()

	_, err := h.reimbursement.Reject(h.ctx, rb.ID, "   ", admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := h.reimbursement.Reject(h.ctx, rb.ID, "missing invoice", admin)
	require.NoError(t, err)
	assert.Equal(t, "rejected", got.Status)
	assert.Equal(t, "missing invoice", got.RejectionReason)
	require.NotNil(t, got.RejectedBy)

	rejected := h.pub.ofType(events.ReimbursementRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "missing invoice", rejected[0].Attributes["reason"])
}

func TestReimbursement_InvalidTransitions(t *testing.T) {
	h := newHarness(t)

	fresh := h.redeemedClaim()
	_, err := h.reimbursement.MarkPaid(h.ctx, fresh.ID, "", admin)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "paying skips approval")

	approved := h.redeemedClaim()
	_, err = h.reimbursement.Approve(h.ctx, approved.ID, "", admin)
	require.NoError(t, err)
	_, err = h.reimbursement.Approve(h.ctx, approved.ID, "", admin)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = h.reimbursement.Reject(h.ctx, approved.ID, "late", admin)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = h.reimbursement.Approve(h.ctx, 9999, "", admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	history, err := h.rbRepo.ListHistory(h.ctx, approved.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "refused transitions leave no history")
}

// claimModel is the reference transition table
var claimModel = map[string]map[string]string{
	"to_validate": {"approve": "approved", "reject": "rejected"},
	"approved":    {"pay": "paid"},
}

func TestReimbursement_StateMachine(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		rb := h.redeemedClaim()
		state := "to_validate"

		steps := rapid.SliceOfN(rapid.SampledFrom([]string{"approve", "reject", "pay", "edit"}), 1, 6).Draw(rt, "steps")
		for _, step := range steps {
			var err error
			switch step {
			case "approve":
				_, err = h.reimbursement.Approve(h.ctx, rb.ID, "", admin)
			case "reject":
				_, err = h.reimbursement.Reject(h.ctx, rb.ID, "no", admin)
			case "pay":
				_, err = h.reimbursement.MarkPaid(h.ctx, rb.ID, "", admin)
			case "edit":
				note := "edited"
				_, err = h.reimbursement.Edit(h.ctx, rb.ID, EditInput{Notes: &note}, admin)
				if domain.ReimbursementStatus(state).Editable() {
					require.NoError(rt, err)
				} else {
					require.ErrorIs(rt, err, domain.ErrInvalidState)
				}
				continue
			}

			if next, ok := claimModel[state][step]; ok {
				require.NoError(rt, err, "%s from %s", step, state)
				state = next
			} else {
				require.ErrorIs(rt, err, domain.ErrInvalidState, "%s from %s", step, state)
			}

			stored, err := h.rbRepo.GetByID(h.ctx, rb.ID)
			require.NoError(rt, err)
			require.Equal(rt, state, stored.Status)
		}
	})
}

func TestReimbursement_Edit(t *testing.T) {
	h := newHarness(t)
	rb := h.redeemedClaim()

	_, err := h.reimbursement.Edit(h.ctx, rb.ID, EditInput{}, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	neg := decimal.NewFromInt(-1)
	_, err = h.reimbursement.Edit(h.ctx, rb.ID, EditInput{Amount: &neg}, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	amount := decimal.RequireFromString("87.456")
	pix := " new-pix@example.com "
	got, err := h.reimbursement.Edit(h.ctx, rb.ID, EditInput{Amount: &amount, PixKey: &pix}, admin)
	require.NoError(t, err)
	assert.Equal(t, "87.46", got.Amount.StringFixed(2))
	assert.Equal(t, "new-pix@example.com", got.PixKey)
	assert.Equal(t, "to_validate", got.Status)
	last := got.History[len(got.History)-1]
	assert.Equal(t, models.HistoryEdited, last.Action)
	assert.Equal(t, "changed amount, pix_key", last.Note)

	_, err = h.reimbursement.Approve(h.ctx, rb.ID, "", admin)
	require.NoError(t, err)
	_, err = h.reimbursement.Edit(h.ctx, rb.ID, EditInput{Amount: &amount}, admin)
	assert.NoError(t, err, "approved claims are still editable")

	_, err = h.reimbursement.MarkPaid(h.ctx, rb.ID, "", admin)
	require.NoError(t, err)
	_, err = h.reimbursement.Edit(h.ctx, rb.ID, EditInput{Amount: &amount}, admin)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReimbursement_ManualCreate(t *testing.T) {
	h := newHarness(t)
	h.setSetting(KeyAutoReimbursement, "false")
	emp := h.employee(true)
	dist := h.distributor("external")
	v := h.voucher(emp.ID, 10)

	_, err := h.reimbursement.Create(h.ctx, CreateInput{VoucherID: v.ID}, admin)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "active voucher")

	res, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
	require.NoError(t, err)
	require.Nil(t, res.ReimbursementID)

	other := h.distributor("external")
	_, err = h.reimbursement.Create(h.ctx, CreateInput{VoucherID: v.ID, DistributorID: other.ID}, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.reimbursement.Create(h.ctx, CreateInput{VoucherID: v.ID, ReferenceMonth: "2024-04"}, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	amount := decimal.RequireFromString("120.5")
	rb, err := h.reimbursement.Create(h.ctx, CreateInput{
		VoucherID:     v.ID,
		DistributorID: dist.ID,
		Amount:        &amount,
		Notes:         " manual ",
		PixKey:        "override@example.com",
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, "120.50", rb.Amount.StringFixed(2))
	assert.Equal(t, "manual", rb.Notes)
	assert.Equal(t, "override@example.com", rb.PixKey)
	assert.Equal(t, dist.Bank, rb.Bank)
	assert.Equal(t, emp.ID, rb.EmployeeID)
	require.NotNil(t, rb.ValidatedAt)

	_, err = h.reimbursement.Create(h.ctx, CreateInput{VoucherID: v.ID}, admin)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = h.reimbursement.Create(h.ctx, CreateInput{VoucherID: 9999}, admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, h.auditActions(), "create_reimbursement")
}

func TestReimbursement_BulkCreate(t *testing.T) {
	h := newHarness(t)
	h.setSetting(KeyAutoReimbursement, "false")
	emp := h.employee(true)
	dist := h.distributor("external")

	var redeemed []uint
	for i := 0; i < 2; i++ {
		v := h.voucher(emp.ID, 10)
		_, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
		require.NoError(t, err)
		redeemed = append(redeemed, v.ID)
	}
	unredeemed := h.voucher(emp.ID, 10)

	pending, err := h.reimbursement.ListPendingForDistributor(h.ctx, dist.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	res, err := h.reimbursement.BulkCreate(h.ctx, dist.ID, append(redeemed, unredeemed.ID), admin)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 3)
	assert.NotZero(t, res.Items[0].ReimbursementID)
	assert.NotEmpty(t, res.Items[2].Error)

	pending, err = h.reimbursement.ListPendingForDistributor(h.ctx, dist.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = h.reimbursement.BulkCreate(h.ctx, dist.ID, nil, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.reimbursement.ListPendingForDistributor(h.ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReimbursement_Delete(t *testing.T) {
	h := newHarness(t)

	open := h.redeemedClaim()
	_, err := h.reimbursement.AttachProof(h.ctx, open.ID, []ProofUpload{pdf(domain.ProofInvoice, "nf.pdf")}, admin)
	require.NoError(t, err)
	withFile, err := h.rbRepo.GetByID(h.ctx, open.ID)
	require.NoError(t, err)

	require.NoError(t, h.reimbursement.Delete(h.ctx, open.ID, admin))
	_, err = h.reimbursement.Get(h.ctx, open.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.store.Open(withFile.InvoicePath)
	assert.Error(t, err, "documents are removed with the claim")

	history, err := h.rbRepo.ListHistory(h.ctx, open.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	approved := h.redeemedClaim()
	_, err = h.reimbursement.Approve(h.ctx, approved.ID, "", admin)
	require.NoError(t, err)
	assert.ErrorIs(t, h.reimbursement.Delete(h.ctx, approved.ID, admin), domain.ErrInvalidState)

	rejected := h.redeemedClaim()
	_, err = h.reimbursement.Reject(h.ctx, rejected.ID, "dup", admin)
	require.NoError(t, err)
	assert.NoError(t, h.reimbursement.Delete(h.ctx, rejected.ID, admin))
}

func pdf(slot domain.ProofSlot, name string) ProofUpload {
	body := "%PDF-1.4 " + string(slot)
	return ProofUpload{Slot: slot, Filename: name, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestReimbursement_AttachProof(t *testing.T) {
	h := newHarness(t)
	rb := h.redeemedClaim()

	got, err := h.reimbursement.AttachProof(h.ctx, rb.ID, []ProofUpload{
		pdf(domain.ProofInvoice, "nota.pdf"),
		pdf(domain.ProofReceipt, "recibo.PDF"),
	}, admin)
	require.NoError(t, err)
	first := got.InvoicePath
	require.NotEmpty(t, first)
	require.NotEmpty(t, got.ReceiptPath)

	rc, path, err := h.reimbursement.OpenProof(h.ctx, rb.ID, domain.ProofInvoice)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, first, path)
	assert.Equal(t, "%PDF-1.4 invoice", string(body))

	got, err = h.reimbursement.AttachProof(h.ctx, rb.ID, []ProofUpload{pdf(domain.ProofInvoice, "nota2.pdf")}, admin)
	require.NoError(t, err)
	assert.NotEqual(t, first, got.InvoicePath)
	_, err = h.store.Open(first)
	assert.Error(t, err, "the replaced document is removed")

	_, _, err = h.reimbursement.OpenProof(h.ctx, rb.ID, domain.ProofPaymentProof)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.reimbursement.Approve(h.ctx, rb.ID, "", admin)
	require.NoError(t, err)
	_, err = h.reimbursement.MarkPaid(h.ctx, rb.ID, "", admin)
	require.NoError(t, err)
	_, err = h.reimbursement.AttachProof(h.ctx, rb.ID, []ProofUpload{pdf(domain.ProofPaymentProof, "pix.png")}, admin)
	assert.NoError(t, err, "proofs can be attached in any status")
}

func TestReimbursement_AttachProofValidation(t *testing.T) {
	h := newHarness(t)
	rb := h.redeemedClaim()

	cases := map[string][]ProofUpload{
		"none":          nil,
		"extension":     {pdf(domain.ProofInvoice, "virus.exe")},
		"unknown slot":  {pdf("contract", "c.pdf")},
		"duplicate":     {pdf(domain.ProofInvoice, "a.pdf"), pdf(domain.ProofInvoice, "b.pdf")},
		"oversize":      {{Slot: domain.ProofReceipt, Filename: "big.pdf", Size: MaxProofSize + 1, Content: strings.NewReader("x")}},
		"missing bytes": {{Slot: domain.ProofReceipt, Filename: "r.pdf"}},
	}
	for name, uploads := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.reimbursement.AttachProof(h.ctx, rb.ID, uploads, admin)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := h.reimbursement.AttachProof(h.ctx, 9999, []ProofUpload{pdf(domain.ProofInvoice, "a.pdf")}, admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReimbursement_ListAndStats(t *testing.T) {
	h := newHarness(t)
	a := h.redeemedClaim()
	b := h.redeemedClaim()
	h.redeemedClaim()
	_, err := h.reimbursement.Approve(h.ctx, a.ID, "", admin)
	require.NoError(t, err)
	_, err = h.reimbursement.Reject(h.ctx, b.ID, "no", admin)
	require.NoError(t, err)

	page, err := h.reimbursement.List(h.ctx, repositories.ReimbursementFilter{Status: "approved"}, pageOf(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Meta.Total)
	require.Len(t, page.Reimbursements, 1)
	assert.Equal(t, a.ID, page.Reimbursements[0].ID)

	assert.Equal(t, int64(3), page.Stats.Total, "stats ignore the filter")
	assert.Equal(t, int64(1), page.Stats.ToValidate)
	assert.Equal(t, int64(1), page.Stats.Rejected)
	assert.Equal(t, "100.00", page.Stats.AmountApproved.StringFixed(2))

	_, err = h.reimbursement.List(h.ctx, repositories.ReimbursementFilter{Status: "lost"}, pageOf(1, 10))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.reimbursement.List(h.ctx, repositories.ReimbursementFilter{ReferenceMonth: "2024-5"}, pageOf(1, 10))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReimbursement_ExportCSV(t *testing.T) {
	h := newHarness(t)
	h.admin()
	rb := h.redeemedClaim()
	h.redeemedClaim()
	_, err := h.reimbursement.Approve(h.ctx, rb.ID, "", admin)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := h.reimbursement.ExportCSV(h.ctx, repositories.ReimbursementFilter{Status: "approved"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "excel needs the byte order mark")

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exportHeader, records[0])

	row := records[1]
	assert.Equal(t, "2024-05", row[1])
	assert.True(t, strings.HasPrefix(row[2], "VG-"))
	assert.Equal(t, "100.00", row[7])
	assert.Equal(t, "approved", row[8])
	assert.Equal(t, "2024-05-10 14:00", row[10])
	assert.Equal(t, admin.Name, row[11])
}

// historyDown fails every history insert
type historyDown struct {
	repositories.ReimbursementRepository
}

func (historyDown) AppendHistory(context.Context, *models.ReimbursementHistory) error {
	return errors.New("history table locked")
}

func TestReimbursement_HistoryFailureKeepsTransition(t *testing.T) {
	h := newHarness(t)
	rb := h.redeemedClaim()

	core, logs := observer.New(zapcore.ErrorLevel)
	h.reimbursement.repo = historyDown{h.rbRepo}
	h.reimbursement.log = zap.New(core)

	got, err := h.reimbursement.Approve(h.ctx, rb.ID, "", admin)
	require.NoError(t, err, "the transition is not undone by a failed history write")
	assert.Equal(t, "approved", got.Status)

	entries := logs.FilterMessage("reimbursement history write failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "to_validate", fields["from"])
	assert.Equal(t, "approved", fields["to"])
	assert.Equal(t, admin.Name, fields["actor"])
	assert.Equal(t, models.HistoryApproved, fields["action"])

	stored, err := h.rbRepo.GetByID(h.ctx, rb.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", stored.Status)
}
