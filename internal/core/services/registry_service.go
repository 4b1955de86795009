package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/password"

	"go.uber.org/zap"
)

var (
	nonDigits    = regexp.MustCompile(`\D`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// RegistryService manages employees and distributors
type RegistryService struct {
	employees    repositories.EmployeeRepository
	distributors repositories.DistributorRepository
	audit        *AuditService
	log          *zap.Logger
	hashCost     int
}

// NewRegistryService creates a new registry service
func NewRegistryService(
	employees repositories.EmployeeRepository,
	distributors repositories.DistributorRepository,
	audit *AuditService,
	log *zap.Logger,
) *RegistryService {
	return &RegistryService{
		employees:    employees,
		distributors: distributors,
		audit:        audit,
		log:          log.Named("registry"),
		hashCost:     password.DefaultCost,
	}
}

// ============================================================
// Employees
// ============================================================

// MaxImportRows caps one bulk employee import
const MaxImportRows = 500

// temporaryPasswordLength is the size of generated first-access passwords
const temporaryPasswordLength = 10

// EmployeeInput represents employee creation input. An empty password gets
// a generated temporary one, returned once in the response.
type EmployeeInput struct {
	Name          string `json:"name"`
	Document      string `json:"document"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	ZipCode       string `json:"zip_code"`
	Street        string `json:"street"`
	Number        string `json:"number"`
	Complement    string `json:"complement"`
	District      string `json:"district"`
	City          string `json:"city"`
	State         string `json:"state"`
	Registration  string `json:"registration"`
	Department    string `json:"department"`
	AdmissionDate string `json:"admission_date"`
}

func (in EmployeeInput) toModel() (*models.Employee, error) {
	e := &models.Employee{
		Name:         strings.TrimSpace(in.Name),
		Document:     nonDigits.ReplaceAllString(in.Document, ""),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		ZipCode:      strings.TrimSpace(in.ZipCode),
		Street:       strings.TrimSpace(in.Street),
		Number:       strings.TrimSpace(in.Number),
		Complement:   strings.TrimSpace(in.Complement),
		District:     strings.TrimSpace(in.District),
		City:         strings.TrimSpace(in.City),
		State:        strings.ToUpper(strings.TrimSpace(in.State)),
		Registration: strings.TrimSpace(in.Registration),
		Department:   strings.TrimSpace(in.Department),
		IsActive:     true,
	}

	switch {
	case e.Name == "":
		return nil, domain.Invalid("name", "name is required")
	case len(e.Document) != 11:
		return nil, domain.Invalid("document", "CPF must have 11 digits")
	case !emailPattern.MatchString(e.Email):
		return nil, domain.Invalid("email", "invalid email")
	case e.City == "":
		return nil, domain.Invalid("city", "city is required")
	case len(e.State) != 2:
		return nil, domain.Invalid("state", "state must be a 2 letter code")
	case in.Password != "" && !password.Valid(in.Password):
		return nil, domain.Invalid("password", "password is too short")
	}

	if in.AdmissionDate != "" {
		d, err := parseDate(in.AdmissionDate)
		if err != nil {
			return nil, err
		}
		e.AdmissionDate = &d
	}
	return e, nil
}

func parseDate(v string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, domain.Invalid("admission_date", "must be YYYY-MM-DD")
	}
	return d, nil
}

// CreateEmployee registers an active employee
func (s *RegistryService) CreateEmployee(ctx context.Context, in EmployeeInput, actor Actor) (*models.Employee, error) {
	e, err := in.toModel()
	if err != nil {
		return nil, err
	}
	if err := s.insertEmployee(ctx, e, in.Password); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{Actor: actor, Action: "create_employee", Entity: "employee", EntityID: e.ID})
	return e, nil
}

// insertEmployee hashes plain (or a generated temporary password) and stores e
func (s *RegistryService) insertEmployee(ctx context.Context, e *models.Employee, plain string) error {
	temporary := plain == ""
	if temporary {
		generated, err := password.Temporary(temporaryPasswordLength)
		if err != nil {
			return err
		}
		plain = generated
	}

	hashed, err := password.HashWithCost(plain, s.hashCost)
	if err != nil {
		return err
	}
	e.Password = hashed

	if err := s.employees.Create(ctx, e); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domain.Conflict("an employee with this document or email already exists")
		}
		return domain.Persistence("create employee", err)
	}
	if temporary {
		e.TemporaryPassword = plain
	}
	return nil
}

// ImportRowError explains why one import row was skipped. Row is 1-based.
type ImportRowError struct {
	Row      int    `json:"row"`
	Name     string `json:"name"`
	Document string `json:"document"`
	Error    string `json:"error"`
}

// ImportResult summarises a bulk employee import
type ImportResult struct {
	Received int               `json:"received"`
	Imported []models.Employee `json:"imported"`
	Errors   []ImportRowError  `json:"errors"`
}

// ImportEmployees registers up to MaxImportRows employees. Rows fail on
// their own: an invalid or duplicate row is reported and the rest go on.
// Imported employees carry their temporary password in the result.
func (s *RegistryService) ImportEmployees(ctx context.Context, rows []EmployeeInput, actor Actor) (*ImportResult, error) {
	switch {
	case len(rows) == 0:
		return nil, domain.Invalid("employees", "no employees to import")
	case len(rows) > MaxImportRows:
		return nil, domain.Invalid("employees", fmt.Sprintf("at most %d employees per import", MaxImportRows))
	}

	result := &ImportResult{
		Received: len(rows),
		Imported: make([]models.Employee, 0, len(rows)),
		Errors:   []ImportRowError{},
	}
	for i, in := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Imported accounts always start on a temporary password
		in.Password = ""
		e, err := in.toModel()
		if err == nil {
			err = s.insertEmployee(ctx, e, "")
		}
		if err != nil {
			reason := err.Error()
			if !domain.IsBusiness(err) {
				s.log.Error("employee import row failed", zap.Int("row", i+1), zap.Error(err))
				reason = "internal error"
			}
			result.Errors = append(result.Errors, ImportRowError{
				Row:      i + 1,
				Name:     strings.TrimSpace(in.Name),
				Document: nonDigits.ReplaceAllString(in.Document, ""),
				Error:    reason,
			})
			continue
		}
		result.Imported = append(result.Imported, *e)
	}

	s.log.Info("👥 Employees imported",
		zap.Int("received", result.Received),
		zap.Int("imported", len(result.Imported)),
		zap.Int("errors", len(result.Errors)),
	)
	s.audit.Record(ctx, AuditEntry{
		Actor:  actor,
		Action: "import_employees",
		Entity: "employee",
		Details: map[string]interface{}{
			"received": result.Received,
			"imported": len(result.Imported),
			"errors":   len(result.Errors),
		},
	})
	return result, nil
}

// EmployeeUpdate is a partial employee edit. Nil fields stay as they are.
// The CPF is the login key and cannot be changed.
type EmployeeUpdate struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	ZipCode       *string `json:"zip_code"`
	Street        *string `json:"street"`
	Number        *string `json:"number"`
	Complement    *string `json:"complement"`
	District      *string `json:"district"`
	City          *string `json:"city"`
	State         *string `json:"state"`
	Registration  *string `json:"registration"`
	Department    *string `json:"department"`
	AdmissionDate *string `json:"admission_date"`
	IsActive      *bool   `json:"is_active"`
}

func (u EmployeeUpdate) changes() (map[string]interface{}, error) {
	c := map[string]interface{}{}
	setText(c, "phone", u.Phone)
	setText(c, "zip_code", u.ZipCode)
	setText(c, "street", u.Street)
	setText(c, "number", u.Number)
	setText(c, "complement", u.Complement)
	setText(c, "district", u.District)
	setText(c, "registration", u.Registration)
	setText(c, "department", u.Department)

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, domain.Invalid("name", "name is required")
		}
		c["name"] = name
	}
	if u.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*u.Email))
		if !emailPattern.MatchString(email) {
			return nil, domain.Invalid("email", "invalid email")
		}
		c["email"] = email
	}
	if u.City != nil {
		city := strings.TrimSpace(*u.City)
		if city == "" {
			return nil, domain.Invalid("city", "city is required")
		}
		c["city"] = city
	}
	if u.State != nil {
		state := strings.ToUpper(strings.TrimSpace(*u.State))
		if len(state) != 2 {
			return nil, domain.Invalid("state", "state must be a 2 letter code")
		}
		c["state"] = state
	}
	if u.AdmissionDate != nil {
		d, err := parseDate(*u.AdmissionDate)
		if err != nil {
			return nil, err
		}
		c["admission_date"] = d
	}
	if u.IsActive != nil {
		c["is_active"] = *u.IsActive
	}
	return c, nil
}

func setText(c map[string]interface{}, column string, v *string) {
	if v != nil {
		c[column] = strings.TrimSpace(*v)
	}
}

// UpdateEmployee applies a partial edit and returns the stored employee
func (s *RegistryService) UpdateEmployee(ctx context.Context, id uint, in EmployeeUpdate, actor Actor) (*models.Employee, error) {
	if _, err := s.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	changes, err := in.changes()
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, domain.Invalid("body", "nothing to update")
	}

	if _, err := s.employees.Update(ctx, id, changes); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, domain.Conflict("email already used by another employee")
		}
		return nil, domain.Persistence("update employee", err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "update_employee",
		Entity:   "employee",
		EntityID: id,
		Details:  map[string]interface{}{"fields": changedFields(changes)},
	})
	return s.GetEmployee(ctx, id)
}

func changedFields(changes map[string]interface{}) []string {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// EmployeePage is one page of employees
type EmployeePage struct {
	Employees []models.Employee `json:"employees"`
	Meta      pagination.Meta   `json:"pagination"`
}

// ListEmployees returns employees by name
func (s *RegistryService) ListEmployees(ctx context.Context, f repositories.EmployeeFilter, p pagination.Params) (*EmployeePage, error) {
	rows, total, err := s.employees.List(ctx, f, p.Offset, p.Limit)
	if err != nil {
		return nil, domain.Persistence("list employees", err)
	}
	return &EmployeePage{Employees: rows, Meta: pagination.MetaFor(p, total)}, nil
}

// GetEmployee returns one employee
func (s *RegistryService) GetEmployee(ctx context.Context, id uint) (*models.Employee, error) {
	e, err := s.employees.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("employee")
	}
	return e, domain.Persistence("get employee", err)
}

// DeactivateEmployee stops future issuance for an employee. Existing
// vouchers are untouched.
func (s *RegistryService) DeactivateEmployee(ctx context.Context, id uint, actor Actor) error {
	if _, err := s.GetEmployee(ctx, id); err != nil {
		return err
	}
	if _, err := s.employees.Deactivate(ctx, id); err != nil {
		return domain.Persistence("deactivate employee", err)
	}
	s.audit.Record(ctx, AuditEntry{Actor: actor, Action: "deactivate_employee", Entity: "employee", EntityID: id})
	return nil
}

// ============================================================
// Distributors
// ============================================================

// DistributorInput represents distributor creation input
type DistributorInput struct {
	Name         string   `json:"name"`
	Document     string   `json:"document"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Phone        string   `json:"phone"`
	ContactName  string   `json:"contact_name"`
	ZipCode      string   `json:"zip_code"`
	Street       string   `json:"street"`
	Number       string   `json:"number"`
	Complement   string   `json:"complement"`
	District     string   `json:"district"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	OpeningHours string   `json:"opening_hours"`
	Kind         string   `json:"kind"`
	Bank         string   `json:"bank"`
	Agency       string   `json:"agency"`
	Account      string   `json:"account"`
	AccountType  string   `json:"account_type"`
	PixKey       string   `json:"pix_key"`
}

// CreateDistributor registers an active distributor with a login
func (s *RegistryService) CreateDistributor(ctx context.Context, in DistributorInput, actor Actor) (*models.Distributor, error) {
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = string(domain.DistributorExternal)
	}

	d := &models.Distributor{
		Name:         strings.TrimSpace(in.Name),
		Document:     nonDigits.ReplaceAllString(in.Document, ""),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		ContactName:  strings.TrimSpace(in.ContactName),
		ZipCode:      strings.TrimSpace(in.ZipCode),
		Street:       strings.TrimSpace(in.Street),
		Number:       strings.TrimSpace(in.Number),
		Complement:   strings.TrimSpace(in.Complement),
		District:     strings.TrimSpace(in.District),
		City:         strings.TrimSpace(in.City),
		State:        strings.ToUpper(strings.TrimSpace(in.State)),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		OpeningHours: strings.TrimSpace(in.OpeningHours),
		Kind:         kind,
		Bank:         strings.TrimSpace(in.Bank),
		Agency:       strings.TrimSpace(in.Agency),
		Account:      strings.TrimSpace(in.Account),
		AccountType:  strings.TrimSpace(in.AccountType),
		PixKey:       strings.TrimSpace(in.PixKey),
		IsActive:     true,
	}

	switch {
	case d.Name == "":
		return nil, domain.Invalid("name", "name is required")
	case len(d.Document) != 14:
		return nil, domain.Invalid("document", "CNPJ must have 14 digits")
	case !emailPattern.MatchString(d.Email):
		return nil, domain.Invalid("email", "invalid email")
	case kind != string(domain.DistributorInternal) && kind != string(domain.DistributorExternal):
		return nil, domain.Invalid("kind", "kind must be internal or external")
	case !password.Valid(in.Password):
		return nil, domain.Invalid("password", "password is too short")
	}

	hashed, err := password.HashWithCost(in.Password, s.hashCost)
	if err != nil {
		return nil, err
	}
	d.Password = hashed

	if err := s.distributors.Create(ctx, d); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, domain.Conflict("a distributor with this document or email already exists")
		}
		return nil, domain.Persistence("create distributor", err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "create_distributor",
		Entity:   "distributor",
		EntityID: d.ID,
		Details:  map[string]interface{}{"kind": d.Kind},
	})
	return d, nil
}

// DistributorUpdate is a partial distributor edit. Document, kind and bank
// details are fixed after registration.
type DistributorUpdate struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	ContactName  *string `json:"contact_name"`
	ZipCode      *string `json:"zip_code"`
	Street       *string `json:"street"`
	Number       *string `json:"number"`
	Complement   *string `json:"complement"`
	District     *string `json:"district"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	OpeningHours *string `json:"opening_hours"`
	IsActive     *bool   `json:"is_active"`
}

func (u DistributorUpdate) changes() (map[string]interface{}, error) {
	c := map[string]interface{}{}
	setText(c, "phone", u.Phone)
	setText(c, "contact_name", u.ContactName)
	setText(c, "zip_code", u.ZipCode)
	setText(c, "street", u.Street)
	setText(c, "number", u.Number)
	setText(c, "complement", u.Complement)
	setText(c, "district", u.District)
	setText(c, "city", u.City)
	setText(c, "opening_hours", u.OpeningHours)

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, domain.Invalid("name", "name is required")
		}
		c["name"] = name
	}
	if u.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*u.Email))
		if !emailPattern.MatchString(email) {
			return nil, domain.Invalid("email", "invalid email")
		}
		c["email"] = email
	}
	if u.State != nil {
		c["state"] = strings.ToUpper(strings.TrimSpace(*u.State))
	}
	if u.IsActive != nil {
		c["is_active"] = *u.IsActive
	}
	return c, nil
}

// UpdateDistributor applies a partial edit and returns the stored distributor
func (s *RegistryService) UpdateDistributor(ctx context.Context, id uint, in DistributorUpdate, actor Actor) (*models.Distributor, error) {
	if _, err := s.GetDistributor(ctx, id); err != nil {
		return nil, err
	}
	changes, err := in.changes()
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, domain.Invalid("body", "nothing to update")
	}

	if _, err := s.distributors.Update(ctx, id, changes); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, domain.Conflict("email already used by another distributor")
		}
		return nil, domain.Persistence("update distributor", err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "update_distributor",
		Entity:   "distributor",
		EntityID: id,
		Details:  map[string]interface{}{"fields": changedFields(changes)},
	})
	return s.GetDistributor(ctx, id)
}

// DistributorPage is one page of distributors
type DistributorPage struct {
	Distributors []models.Distributor `json:"distributors"`
	Meta         pagination.Meta      `json:"pagination"`
}

// ListDistributors returns distributors by name
func (s *RegistryService) ListDistributors(ctx context.Context, f repositories.DistributorFilter, p pagination.Params) (*DistributorPage, error) {
	rows, total, err := s.distributors.List(ctx, f, p.Offset, p.Limit)
	if err != nil {
		return nil, domain.Persistence("list distributors", err)
	}
	return &DistributorPage{Distributors: rows, Meta: pagination.MetaFor(p, total)}, nil
}

// GetDistributor returns one distributor
func (s *RegistryService) GetDistributor(ctx context.Context, id uint) (*models.Distributor, error) {
	d, err := s.distributors.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("distributor")
	}
	return d, domain.Persistence("get distributor", err)
}

// DeactivateDistributor blocks logins and redemptions at a distributor
func (s *RegistryService) DeactivateDistributor(ctx context.Context, id uint, actor Actor) error {
	if _, err := s.GetDistributor(ctx, id); err != nil {
		return err
	}
	if _, err := s.distributors.Deactivate(ctx, id); err != nil {
		return domain.Persistence("deactivate distributor", err)
	}
	s.audit.Record(ctx, AuditEntry{Actor: actor, Action: "deactivate_distributor", Entity: "distributor", EntityID: id})
	return nil
}
