package handlers

import (
	"strconv"

	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RegistryHandler handles employee and distributor maintenance
type RegistryHandler struct {
	registryService *services.RegistryService
	log             *zap.Logger
}

// NewRegistryHandler creates a new registry handler
func NewRegistryHandler(registryService *services.RegistryService, log *zap.Logger) *RegistryHandler {
	return &RegistryHandler{
		registryService: registryService,
		log:             log,
	}
}

func activeFilter(c *fiber.Ctx) *bool {
	v, err := strconv.ParseBool(c.Query("active"))
	if err != nil {
		return nil
	}
	return &v
}

// ============================================================
// Employees
// ============================================================

// CreateEmployee registers an employee
// @Summary Create employee
// @Tags Employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.EmployeeInput true "Employee"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/employees [post]
func (h *RegistryHandler) CreateEmployee(c *fiber.Ctx) error {
	var req services.EmployeeInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	e, err := h.registryService.CreateEmployee(c.UserContext(), req, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Created(c, "Employee created", e)
}

// ListEmployees lists employees
// @Summary List employees
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name, document, email or registration"
// @Param active query bool false "Active flag"
// @Param page query int false "Page"
// @Success 200 {object} response.Response
// @Router /api/v1/employees [get]
func (h *RegistryHandler) ListEmployees(c *fiber.Ctx) error {
	filter := repositories.EmployeeFilter{Search: c.Query("search"), Active: activeFilter(c)}
	page, err := h.registryService.ListEmployees(c.UserContext(), filter, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}

// GetEmployee returns one employee
// @Summary Get employee
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/employees/{id} [get]
func (h *RegistryHandler) GetEmployee(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid employee ID")
	}
	e, err := h.registryService.GetEmployee(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", e)
}

// ImportEmployeesRequest is a bulk employee import
type ImportEmployeesRequest struct {
	Employees []services.EmployeeInput `json:"employees"`
}

// ImportEmployees registers employees in bulk
// @Summary Import employees
// @Description Register up to 500 employees. Bad rows are listed and skipped; imported ones come back with a temporary password.
// @Tags Employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ImportEmployeesRequest true "Employees"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/employees:import [post]
func (h *RegistryHandler) ImportEmployees(c *fiber.Ctx) error {
	var req ImportEmployeesRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.registryService.ImportEmployees(c.UserContext(), req.Employees, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Import finished", result)
}

// UpdateEmployee edits an employee
// @Summary Update employee
// @Tags Employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Param body body services.EmployeeUpdate true "Fields to change"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/employees/{id} [put]
func (h *RegistryHandler) UpdateEmployee(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid employee ID")
	}
	var req services.EmployeeUpdate
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	e, err := h.registryService.UpdateEmployee(c.UserContext(), id, req, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Employee updated", e)
}

// DeactivateEmployee turns an employee inactive
// @Summary Deactivate employee
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/employees/{id}:deactivate [post]
func (h *RegistryHandler) DeactivateEmployee(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid employee ID")
	}
	if err := h.registryService.DeactivateEmployee(c.UserContext(), id, actorFrom(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Employee deactivated", nil)
}

// ============================================================
// Distributors
// ============================================================

// CreateDistributor registers a distribution point
// @Summary Create distributor
// @Tags Distributors
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.DistributorInput true "Distributor"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/distributors [post]
func (h *RegistryHandler) CreateDistributor(c *fiber.Ctx) error {
	var req services.DistributorInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	d, err := h.registryService.CreateDistributor(c.UserContext(), req, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Created(c, "Distributor created", d)
}

// ListDistributors lists distribution points
// @Summary List distributors
// @Tags Distributors
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name, document, email or city"
// @Param kind query string false "internal or external"
// @Param active query bool false "Active flag"
// @Param page query int false "Page"
// @Success 200 {object} response.Response
// @Router /api/v1/distributors [get]
func (h *RegistryHandler) ListDistributors(c *fiber.Ctx) error {
	filter := repositories.DistributorFilter{Search: c.Query("search"), Kind: c.Query("kind"), Active: activeFilter(c)}
	page, err := h.registryService.ListDistributors(c.UserContext(), filter, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}

// GetDistributor returns one distribution point
// @Summary Get distributor
// @Tags Distributors
// @Produce json
// @Security BearerAuth
// @Param id path int true "Distributor ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/distributors/{id} [get]
func (h *RegistryHandler) GetDistributor(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid distributor ID")
	}
	d, err := h.registryService.GetDistributor(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", d)
}

// UpdateDistributor edits a distribution point
// @Summary Update distributor
// @Tags Distributors
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Distributor ID"
// @Param body body services.DistributorUpdate true "Fields to change"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/distributors/{id} [put]
func (h *RegistryHandler) UpdateDistributor(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid distributor ID")
	}
	var req services.DistributorUpdate
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	d, err := h.registryService.UpdateDistributor(c.UserContext(), id, req, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Distributor updated", d)
}

// DeactivateDistributor turns a distribution point inactive
// @Summary Deactivate distributor
// @Tags Distributors
// @Produce json
// @Security BearerAuth
// @Param id path int true "Distributor ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/distributors/{id}:deactivate [post]
func (h *RegistryHandler) DeactivateDistributor(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid distributor ID")
	}
	if err := h.registryService.DeactivateDistributor(c.UserContext(), id, actorFrom(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Distributor deactivated", nil)
}
