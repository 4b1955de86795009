package services

import (
	"testing"

	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/password"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEmployee() EmployeeInput {
	return EmployeeInput{
		Name:          " Maria Souza ",
		Document:      "123.456.789-01",
		Email:         "Maria@Example.com",
		City:          "Campinas",
		State:         "sp",
		AdmissionDate: "2023-02-01",
	}
}

func TestRegistry_CreateEmployee(t *testing.T) {
	h := newHarness(t)

	e, err := h.registry.CreateEmployee(h.ctx, validEmployee(), admin)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", e.Name)
	assert.Equal(t, "12345678901", e.Document)
	assert.Equal(t, "maria@example.com", e.Email)
	assert.Equal(t, "SP", e.State)
	require.NotNil(t, e.AdmissionDate)
	assert.True(t, e.IsActive)
	assert.Contains(t, h.auditActions(), "create_employee")
	require.NotEmpty(t, e.TemporaryPassword, "no password given, so one is generated")
	assert.True(t, password.Verify(e.TemporaryPassword, e.Password))

	chosen := validEmployee()
	chosen.Document = "98765432100"
	chosen.Email = "joao@example.com"
	chosen.Password = "gasdojoao"
	j, err := h.registry.CreateEmployee(h.ctx, chosen, admin)
	require.NoError(t, err)
	assert.Empty(t, j.TemporaryPassword)
	assert.True(t, password.Verify("gasdojoao", j.Password))

	_, err = h.registry.CreateEmployee(h.ctx, validEmployee(), admin)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegistry_CreateEmployeeValidation(t *testing.T) {
	h := newHarness(t)

	mutations := map[string]func(*EmployeeInput){
		"name":      func(in *EmployeeInput) { in.Name = " " },
		"cpf":       func(in *EmployeeInput) { in.Document = "123" },
		"email":     func(in *EmployeeInput) { in.Email = "maria" },
		"city":      func(in *EmployeeInput) { in.City = "" },
		"state":     func(in *EmployeeInput) { in.State = "Sao Paulo" },
		"admission": func(in *EmployeeInput) { in.AdmissionDate = "01/02/2023" },
		"password":  func(in *EmployeeInput) { in.Password = "curta" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := validEmployee()
			mutate(&in)
			_, err := h.registry.CreateEmployee(h.ctx, in, admin)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestRegistry_DeactivateEmployee(t *testing.T) {
	h := newHarness(t)
	e := h.employee(true)
	v := h.voucher(e.ID, 10)

	require.NoError(t, h.registry.DeactivateEmployee(h.ctx, e.ID, admin))
	got, err := h.registry.GetEmployee(h.ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	kept, err := h.voucherRepo.GetByID(h.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", kept.Status, "existing vouchers stay valid")

	assert.ErrorIs(t, h.registry.DeactivateEmployee(h.ctx, 9999, admin), domain.ErrNotFound)

	active := true
	page, err := h.registry.ListEmployees(h.ctx, repositories.EmployeeFilter{Active: &active}, pageOf(1, 10))
	require.NoError(t, err)
	assert.Zero(t, page.Meta.Total)
}

func validDistributor() DistributorInput {
	return DistributorInput{
		Name:     "Gás Centro",
		Document: "12.345.678/0001-90",
		Email:    "centro@example.com",
		Password: "revenda123",
		City:     "Campinas",
		State:    "SP",
		PixKey:   "12345678000190",
	}
}

func TestRegistry_CreateDistributor(t *testing.T) {
	h := newHarness(t)

	d, err := h.registry.CreateDistributor(h.ctx, validDistributor(), admin)
	require.NoError(t, err)
	assert.Equal(t, "12345678000190", d.Document)
	assert.Equal(t, "external", d.Kind, "distributors are external unless stated")
	assert.True(t, password.Verify("revenda123", d.Password))
	assert.NotEqual(t, "revenda123", d.Password)

	_, err = h.registry.CreateDistributor(h.ctx, validDistributor(), admin)
	assert.ErrorIs(t, err, domain.ErrConflict)

	mutations := map[string]func(*DistributorInput){
		"cnpj":     func(in *DistributorInput) { in.Document = "123" },
		"kind":     func(in *DistributorInput) { in.Kind = "franchise" },
		"password": func(in *DistributorInput) { in.Password = "short" },
		"email":    func(in *DistributorInput) { in.Email = "x@" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := validDistributor()
			in.Email = name + "@example.com"
			in.Document = "98765432000110"
			mutate(&in)
			_, err := h.registry.CreateDistributor(h.ctx, in, admin)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestRegistry_DistributorListAndDeactivate(t *testing.T) {
	h := newHarness(t)
	in := validDistributor()
	in.Kind = "Internal"
	internal, err := h.registry.CreateDistributor(h.ctx, in, admin)
	require.NoError(t, err)
	h.distributor("external")

	page, err := h.registry.ListDistributors(h.ctx, repositories.DistributorFilter{Kind: "internal"}, pageOf(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Distributors, 1)
	assert.Equal(t, internal.ID, page.Distributors[0].ID)

	require.NoError(t, h.registry.DeactivateDistributor(h.ctx, internal.ID, admin))
	got, err := h.registry.GetDistributor(h.ctx, internal.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = h.registry.GetDistributor(h.ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_ImportEmployees(t *testing.T) {
	h := newHarness(t)
	existing := h.employee(true)

	rows := []EmployeeInput{
		validEmployee(),
		{Name: "Sem CPF", Document: "12", Email: "semcpf@example.com", City: "Campinas", State: "SP"},
		{Name: "Repetido", Document: existing.Document, Email: "outro@example.com", City: "Campinas", State: "SP"},
		{Name: "Pedro", Document: "111.222.333-44", Email: "pedro@example.com", City: "Sumaré", State: "sp", Password: "ignorada1"},
	}

	res, err := h.registry.ImportEmployees(h.ctx, rows, admin)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Received)
	require.Len(t, res.Imported, 2)
	require.Len(t, res.Errors, 2)

	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, "12", res.Errors[0].Document)
	assert.Equal(t, 3, res.Errors[1].Row)
	assert.Contains(t, res.Errors[1].Error, "already exists")

	for _, e := range res.Imported {
		require.NotEmpty(t, e.TemporaryPassword)
		assert.True(t, password.Verify(e.TemporaryPassword, e.Password))
		assert.True(t, e.IsActive)
	}
	assert.Equal(t, "11122233344", res.Imported[1].Document)
	assert.NotEqual(t, "ignorada1", res.Imported[1].TemporaryPassword, "imports always get a temporary password")

	active := true
	page, err := h.registry.ListEmployees(h.ctx, repositories.EmployeeFilter{Active: &active}, pageOf(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Meta.Total)
	assert.Contains(t, h.auditActions(), "import_employees")
}

func TestRegistry_ImportEmployeesLimits(t *testing.T) {
	h := newHarness(t)

	_, err := h.registry.ImportEmployees(h.ctx, nil, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.registry.ImportEmployees(h.ctx, make([]EmployeeInput, MaxImportRows+1), admin)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NotContains(t, h.auditActions(), "import_employees")
}

func TestRegistry_UpdateEmployee(t *testing.T) {
	h := newHarness(t)
	e := h.employee(true)
	other := h.employee(true)

	phone := " 1130304040 "
	state := "rj"
	inactive := false
	got, err := h.registry.UpdateEmployee(h.ctx, e.ID, EmployeeUpdate{Phone: &phone, State: &state, IsActive: &inactive}, admin)
	require.NoError(t, err)
	assert.Equal(t, "1130304040", got.Phone)
	assert.Equal(t, "RJ", got.State)
	assert.False(t, got.IsActive)
	assert.Equal(t, e.Name, got.Name, "fields left out stay unchanged")
	assert.Contains(t, h.auditActions(), "update_employee")

	_, err = h.registry.UpdateEmployee(h.ctx, e.ID, EmployeeUpdate{Email: &other.Email}, admin)
	assert.ErrorIs(t, err, domain.ErrConflict)

	blank := " "
	_, err = h.registry.UpdateEmployee(h.ctx, e.ID, EmployeeUpdate{Name: &blank}, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.registry.UpdateEmployee(h.ctx, e.ID, EmployeeUpdate{}, admin)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.registry.UpdateEmployee(h.ctx, 9999, EmployeeUpdate{Phone: &phone}, admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_UpdateDistributor(t *testing.T) {
	h := newHarness(t)
	d := h.distributor("external")
	other := h.distributor("internal")

	hours := "07:00-19:00"
	email := " Novo@Example.com "
	got, err := h.registry.UpdateDistributor(h.ctx, d.ID, DistributorUpdate{OpeningHours: &hours, Email: &email}, admin)
	require.NoError(t, err)
	assert.Equal(t, "07:00-19:00", got.OpeningHours)
	assert.Equal(t, "novo@example.com", got.Email)
	assert.Equal(t, "external", got.Kind)
	assert.Contains(t, h.auditActions(), "update_distributor")

	_, err = h.registry.UpdateDistributor(h.ctx, d.ID, DistributorUpdate{Email: &other.Email}, admin)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = h.registry.UpdateDistributor(h.ctx, 9999, DistributorUpdate{OpeningHours: &hours}, admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
