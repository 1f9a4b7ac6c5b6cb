/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMATS:
  Dates:   "YYYY-MM-DD" (ledger.Date implements TextMarshaler)
  Amounts: decimal strings, e.g. "150.00" (shopspring/decimal JSON)
  Times:   RFC 3339

VALIDATION:
  DTOs are pure data carriers. Parsing happens in handlers, rules in the
  ledger service.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/staffing-ledger/ledger"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

type WorkerDTO struct {
	ID        ledger.WorkerID `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt string          `json:"created_at,omitempty"`
}

type CreateWorkerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CompanyDTO struct {
	ID          ledger.CompanyID `json:"id"`
	Name        string           `json:"name"`
	ContactName string           `json:"contact_name,omitempty"`
	Email       string           `json:"email,omitempty"`
	Color       string           `json:"color"`
	Active      bool             `json:"active"`
	CreatedAt   string           `json:"created_at,omitempty"`
}

type CreateCompanyRequest struct {
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
}

type ServiceTypeDTO struct {
	ID          ledger.ServiceTypeID `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Active      bool                 `json:"active"`
}

type CreateServiceTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

type AllocationDTO struct {
	ID                   ledger.AllocationID   `json:"id"`
	WorkerID             ledger.WorkerID       `json:"worker_id"`
	CompanyID            ledger.CompanyID      `json:"company_id"`
	Date                 ledger.Date           `json:"date"`
	PeriodKind           ledger.PeriodKind     `json:"period_kind"`
	WorkerAmount         decimal.Decimal       `json:"worker_amount"`
	CompanyAmount        decimal.Decimal       `json:"company_amount"`
	ServiceTypeID        *ledger.ServiceTypeID `json:"service_type_id"`
	Location             string                `json:"location,omitempty"`
	Description          string                `json:"description,omitempty"`
	Notes                string                `json:"notes,omitempty"`
	WorkerPaymentStatus  ledger.PaymentStatus  `json:"worker_payment_status"`
	CompanyPaymentStatus ledger.PaymentStatus  `json:"company_payment_status"`
	CreatedAt            string                `json:"created_at"`
	UpdatedAt            string                `json:"updated_at"`
}

// CreateAllocationRequest is the body of POST /api/allocations.
type CreateAllocationRequest struct {
	WorkerID      ledger.WorkerID       `json:"worker_id"`
	CompanyID     ledger.CompanyID      `json:"company_id"`
	Date          ledger.Date           `json:"date"`
	PeriodKind    ledger.PeriodKind     `json:"period_kind"`
	WorkerAmount  decimal.Decimal       `json:"worker_amount"`
	CompanyAmount decimal.Decimal       `json:"company_amount"`
	ServiceTypeID *ledger.ServiceTypeID `json:"service_type_id"`
	Location      string                `json:"location"`
	Description   string                `json:"description"`
	Notes         string                `json:"notes"`
}

// UpdateAllocationRequest is the body of PUT /api/allocations/{id}.
// Absent fields are left unchanged; "clear_service_type": true removes it.
type UpdateAllocationRequest struct {
	WorkerID         *ledger.WorkerID      `json:"worker_id"`
	CompanyID        *ledger.CompanyID     `json:"company_id"`
	Date             *ledger.Date          `json:"date"`
	PeriodKind       *ledger.PeriodKind    `json:"period_kind"`
	WorkerAmount     *decimal.Decimal      `json:"worker_amount"`
	CompanyAmount    *decimal.Decimal      `json:"company_amount"`
	ServiceTypeID    *ledger.ServiceTypeID `json:"service_type_id"`
	ClearServiceType bool                  `json:"clear_service_type"`
	Location         *string               `json:"location"`
	Description      *string               `json:"description"`
	Notes            *string               `json:"notes"`
}

type PaymentStatusRequest struct {
	Status ledger.PaymentStatus `json:"status"`
}

type AllocationListDTO struct {
	Items []AllocationDTO `json:"items"`
	Total int             `json:"total"`
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

type DetailDTO struct {
	AllocationID ledger.AllocationID `json:"allocation_id"`
	Amount       decimal.Decimal     `json:"amount"`
}

type WorkerPaymentDTO struct {
	ID              ledger.PaymentID `json:"id"`
	WorkerID        ledger.WorkerID  `json:"worker_id"`
	PaymentDate     ledger.Date      `json:"payment_date"`
	PeriodStart     ledger.Date      `json:"period_start"`
	PeriodEnd       ledger.Date      `json:"period_end"`
	Total           decimal.Decimal  `json:"total"`
	Method          string           `json:"method,omitempty"`
	ReferenceNumber string           `json:"reference_number,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Details         []DetailDTO      `json:"details"`
	CreatedAt       string           `json:"created_at"`
}

type CreateWorkerPaymentRequest struct {
	WorkerID        ledger.WorkerID       `json:"worker_id"`
	PaymentDate     ledger.Date           `json:"payment_date"`
	PeriodStart     ledger.Date           `json:"period_start"`
	PeriodEnd       ledger.Date           `json:"period_end"`
	Method          string                `json:"method"`
	ReferenceNumber string                `json:"reference_number"`
	Notes           string                `json:"notes"`
	AllocationIDs   []ledger.AllocationID `json:"allocation_ids"`
}

type CompanyInvoiceDTO struct {
	ID              ledger.InvoiceID     `json:"id"`
	CompanyID       ledger.CompanyID     `json:"company_id"`
	InvoiceDate     ledger.Date          `json:"invoice_date"`
	DueDate         ledger.Date          `json:"due_date"`
	PeriodStart     ledger.Date          `json:"period_start"`
	PeriodEnd       ledger.Date          `json:"period_end"`
	Total           decimal.Decimal      `json:"total"`
	Status          ledger.InvoiceStatus `json:"status"`
	Method          string               `json:"method,omitempty"`
	ReferenceNumber string               `json:"reference_number,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Details         []DetailDTO          `json:"details"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at"`
}

type CreateCompanyInvoiceRequest struct {
	CompanyID       ledger.CompanyID      `json:"company_id"`
	InvoiceDate     ledger.Date           `json:"invoice_date"`
	DueDate         ledger.Date           `json:"due_date"`
	PeriodStart     ledger.Date           `json:"period_start"`
	PeriodEnd       ledger.Date           `json:"period_end"`
	Method          string                `json:"method"`
	ReferenceNumber string                `json:"reference_number"`
	Notes           string                `json:"notes"`
	AllocationIDs   []ledger.AllocationID `json:"allocation_ids"`
}

type InvoiceStatusRequest struct {
	Status          ledger.InvoiceStatus `json:"status"`
	Method          *string              `json:"method"`
	ReferenceNumber *string              `json:"reference_number"`
}

// =============================================================================
// AUDIT AND SCENARIOS
// =============================================================================

type AuditEntryDTO struct {
	ID          string             `json:"id"`
	OccurredAt  string             `json:"occurred_at"`
	Action      ledger.AuditAction `json:"action"`
	SubjectType string             `json:"subject_type"`
	SubjectID   int64              `json:"subject_id"`
	Payload     map[string]any     `json:"payload,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toWorkerDTO(w ledger.Worker) WorkerDTO {
	return WorkerDTO{
		ID:        w.ID,
		Name:      w.Name,
		Email:     w.Email,
		Phone:     w.Phone,
		Active:    w.Active(),
		CreatedAt: formatTime(w.CreatedAt),
	}
}

func toCompanyDTO(c ledger.Company, color string) CompanyDTO {
	return CompanyDTO{
		ID:          c.ID,
		Name:        c.Name,
		ContactName: c.ContactName,
		Email:       c.Email,
		Color:       color,
		Active:      c.Active(),
		CreatedAt:   formatTime(c.CreatedAt),
	}
}

func toServiceTypeDTO(st ledger.ServiceType) ServiceTypeDTO {
	return ServiceTypeDTO{
		ID:          st.ID,
		Name:        st.Name,
		Description: st.Description,
		Active:      st.Active(),
	}
}

func toAllocationDTO(a ledger.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:                   a.ID,
		WorkerID:             a.WorkerID,
		CompanyID:            a.CompanyID,
		Date:                 a.Date,
		PeriodKind:           a.PeriodKind,
		WorkerAmount:         a.WorkerAmount,
		CompanyAmount:        a.CompanyAmount,
		ServiceTypeID:        a.ServiceTypeID,
		Location:             a.Location,
		Description:          a.Description,
		Notes:                a.Notes,
		WorkerPaymentStatus:  a.WorkerPaymentStatus,
		CompanyPaymentStatus: a.CompanyPaymentStatus,
		CreatedAt:            formatTime(a.CreatedAt),
		UpdatedAt:            formatTime(a.UpdatedAt),
	}
}

func toWorkerPaymentDTO(p ledger.WorkerPayment) WorkerPaymentDTO {
	details := make([]DetailDTO, len(p.Details))
	for i, d := range p.Details {
		details[i] = DetailDTO{AllocationID: d.AllocationID, Amount: d.Amount}
	}
	return WorkerPaymentDTO{
		ID:              p.ID,
		WorkerID:        p.WorkerID,
		PaymentDate:     p.PaymentDate,
		PeriodStart:     p.Period.Start,
		PeriodEnd:       p.Period.End,
		Total:           p.Total,
		Method:          p.Method,
		ReferenceNumber: p.ReferenceNumber,
		Notes:           p.Notes,
		Details:         details,
		CreatedAt:       formatTime(p.CreatedAt),
	}
}

func toCompanyInvoiceDTO(inv ledger.CompanyInvoice) CompanyInvoiceDTO {
	details := make([]DetailDTO, len(inv.Details))
	for i, d := range inv.Details {
		details[i] = DetailDTO{AllocationID: d.AllocationID, Amount: d.Amount}
	}
	return CompanyInvoiceDTO{
		ID:              inv.ID,
		CompanyID:       inv.CompanyID,
		InvoiceDate:     inv.InvoiceDate,
		DueDate:         inv.DueDate,
		PeriodStart:     inv.Period.Start,
		PeriodEnd:       inv.Period.End,
		Total:           inv.Total,
		Status:          inv.Status,
		Method:          inv.Method,
		ReferenceNumber: inv.ReferenceNumber,
		Notes:           inv.Notes,
		Details:         details,
		CreatedAt:       formatTime(inv.CreatedAt),
		UpdatedAt:       formatTime(inv.UpdatedAt),
	}
}

func toAuditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:          e.ID,
		OccurredAt:  formatTime(e.OccurredAt),
		Action:      e.Action,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Payload:     e.Payload,
	}
}
