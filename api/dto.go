/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers. Amounts travel as decimal strings, never floats.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/breakdown.go: Breakdown, embedded directly in responses
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/gigledger/payout-engine/engine"
)

// =============================================================================
// WORKERS
// =============================================================================

type WorkerDTO struct {
	ID         string `json:"id"`
	Code       string `json:"code,omitempty"`
	Name       string `json:"name"`
	Contact    string `json:"contact,omitempty"`
	Notes      string `json:"notes,omitempty"`
	IsOwner    bool   `json:"is_owner"`
	IsArchived bool   `json:"is_archived"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type CreateWorkerRequest struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Notes   string `json:"notes"`
	IsOwner bool   `json:"is_owner"`
}

type UpdateWorkerRequest struct {
	Code       *string `json:"code"`
	Name       *string `json:"name"`
	Contact    *string `json:"contact"`
	Notes      *string `json:"notes"`
	IsOwner    *bool   `json:"is_owner"`
	IsArchived *bool   `json:"is_archived"`
}

// WorkerTotalsDTO is a worker's cross-job position.
type WorkerTotalsDTO struct {
	WorkerID string `json:"worker_id"`
	Earned   string `json:"earned"`
	Paid     string `json:"paid"`
	Due      string `json:"due"`
}

// =============================================================================
// RULE SETS
// =============================================================================

type RuleSetDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	IsActive  bool            `json:"is_active"`
	Rules     json.RawMessage `json:"rules"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// CreateRuleSetRequest carries a new payload. Rules is the raw JSON payload
// handed to the factory; CopyFrom optionally names an existing rule set to
// use as the base when Rules is absent.
type CreateRuleSetRequest struct {
	Name     string          `json:"name"`
	Rules    json.RawMessage `json:"rules"`
	CopyFrom string          `json:"copy_from,omitempty"`
	Notes    string          `json:"notes"`
	Activate bool            `json:"activate"`
}

// =============================================================================
// JOBS
// =============================================================================

type JobDTO struct {
	ID           string           `json:"id"`
	Code         string           `json:"code,omitempty"`
	Title        string           `json:"title"`
	ClientName   string           `json:"client_name,omitempty"`
	Type         string           `json:"type"`
	Status       string           `json:"status"`
	ConnectsUsed int              `json:"connects_used"`
	RuleSetID    string           `json:"rule_set_id"`
	Overrides    *JobOverridesDTO `json:"overrides,omitempty"`
	IsFinalized  bool             `json:"is_finalized"`
	StartDate    string           `json:"start_date,omitempty"`
	EndDate      string           `json:"end_date,omitempty"`
	CreatedAt    string           `json:"created_at,omitempty"`
}

// JobOverridesDTO mirrors engine.JobOverrides; absent fields mean "no
// override for that parameter".
type JobOverridesDTO struct {
	ConnectMode        *string `json:"connect_mode,omitempty"`
	ConnectValue       *string `json:"connect_value,omitempty"`
	PlatformFeeEnabled *bool   `json:"platform_fee_enabled,omitempty"`
	PlatformFeeMode    *string `json:"platform_fee_mode,omitempty"`
	PlatformFeeValue   *string `json:"platform_fee_value,omitempty"`
	PlatformFeeApplyOn *string `json:"platform_fee_apply_on,omitempty"`
}

type CreateJobRequest struct {
	Code         string           `json:"code"`
	Title        string           `json:"title"`
	ClientName   string           `json:"client_name"`
	Type         string           `json:"type"`
	Status       string           `json:"status"`
	ConnectsUsed int              `json:"connects_used"`
	RuleSetID    string           `json:"rule_set_id,omitempty"` // empty: bind the active one
	Overrides    *JobOverridesDTO `json:"overrides,omitempty"`
	StartDate    string           `json:"start_date,omitempty"`
	EndDate      string           `json:"end_date,omitempty"`
}

type UpdateJobRequest struct {
	Code         *string          `json:"code"`
	Title        *string          `json:"title"`
	ClientName   *string          `json:"client_name"`
	Type         *string          `json:"type"`
	Status       *string          `json:"status"`
	ConnectsUsed *int             `json:"connects_used"`
	Overrides    *JobOverridesDTO `json:"overrides"`
	StartDate    *string          `json:"start_date"`
	EndDate      *string          `json:"end_date"`
}

// JobDetailDTO is the job plus its current breakdown (live or snapshot).
type JobDetailDTO struct {
	Job       JobDTO           `json:"job"`
	Breakdown engine.Breakdown `json:"breakdown"`
}

// =============================================================================
// RECEIPTS
// =============================================================================

type ReceiptDTO struct {
	ID     string `json:"id"`
	JobID  string `json:"job_id"`
	Date   string `json:"date"`
	Amount string `json:"amount"`
	Source string `json:"source"`
	Notes  string `json:"notes,omitempty"`
}

type CreateReceiptRequest struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
	Source string `json:"source"`
	Notes  string `json:"notes"`
}

type UpdateReceiptRequest struct {
	Date   *string `json:"date"`
	Amount *string `json:"amount"`
	Source *string `json:"source"`
	Notes  *string `json:"notes"`
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

type AllocationDTO struct {
	ID         string  `json:"id"`
	JobID      string  `json:"job_id"`
	WorkerID   *string `json:"worker_id"`
	Label      string  `json:"label,omitempty"`
	Role       string  `json:"role,omitempty"`
	ShareType  string  `json:"share_type"`
	ShareValue string  `json:"share_value"`
	Notes      string  `json:"notes,omitempty"`
}

type CreateAllocationRequest struct {
	WorkerID   *string `json:"worker_id"`
	Label      string  `json:"label"`
	Role       string  `json:"role"`
	ShareType  string  `json:"share_type"`
	ShareValue string  `json:"share_value"`
	Notes      string  `json:"notes"`
}

type UpdateAllocationRequest struct {
	WorkerID   *string `json:"worker_id"`
	Label      *string `json:"label"`
	Role       *string `json:"role"`
	ShareType  *string `json:"share_type"`
	ShareValue *string `json:"share_value"`
	Notes      *string `json:"notes"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID           string  `json:"id"`
	Code         string  `json:"code,omitempty"`
	WorkerID     string  `json:"worker_id"`
	JobID        *string `json:"job_id"`
	AllocationID *string `json:"allocation_id"`
	Amount       string  `json:"amount"`
	Date         string  `json:"date"`
	Method       string  `json:"method,omitempty"`
	Reference    string  `json:"reference,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	IsPaid       bool    `json:"is_paid"`
	Provenance   string  `json:"provenance"`
}

type CreatePaymentRequest struct {
	Code      string  `json:"code"`
	WorkerID  string  `json:"worker_id"`
	JobID     *string `json:"job_id"`
	Amount    string  `json:"amount"`
	Date      string  `json:"date"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
	Notes     string  `json:"notes"`
	IsPaid    bool    `json:"is_paid"`
}

type UpdatePaymentRequest struct {
	Code      *string `json:"code"`
	Amount    *string `json:"amount"`
	Date      *string `json:"date"`
	Method    *string `json:"method"`
	Reference *string `json:"reference"`
	Notes     *string `json:"notes"`
	IsPaid    *bool   `json:"is_paid"`
}

// =============================================================================
// EXPENSES + REPORTS
// =============================================================================

type ExpenseDTO struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Category string `json:"category,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type CreateExpenseRequest struct {
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Notes    string `json:"notes"`
}

type UpdateExpenseRequest struct {
	Date     *string `json:"date"`
	Amount   *string `json:"amount"`
	Category *string `json:"category"`
	Notes    *string `json:"notes"`
}

type DashboardDTO struct {
	TotalReceived    string `json:"total_received"`
	ConnectDeduction string `json:"connect_deduction"`
	PlatformFee      string `json:"platform_fee"`
	NetDistributable string `json:"net_distributable"`
	TotalPaid        string `json:"total_paid"`
	TotalDue         string `json:"total_due"`
}

type ProfitDTO struct {
	OwnerEarnings string `json:"owner_earnings"`
	Expenses      string `json:"expenses"`
	Profit        string `json:"profit"`
	MarginPercent string `json:"margin_percent"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toWorkerDTO(w engine.Worker) WorkerDTO {
	return WorkerDTO{
		ID:         string(w.ID),
		Code:       w.Code,
		Name:       w.Name,
		Contact:    w.Contact,
		Notes:      w.Notes,
		IsOwner:    w.IsOwner,
		IsArchived: w.IsArchived,
		CreatedAt:  w.CreatedAt.Format(time.RFC3339),
	}
}

func toJobDTO(j engine.Job) JobDTO {
	dto := JobDTO{
		ID:           string(j.ID),
		Code:         j.Code,
		Title:        j.Title,
		ClientName:   j.ClientName,
		Type:         string(j.Type),
		Status:       string(j.Status),
		ConnectsUsed: j.ConnectsUsed,
		RuleSetID:    string(j.RuleSetID),
		IsFinalized:  j.IsFinalized,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartDate != nil {
		dto.StartDate = j.StartDate.Format("2006-01-02")
	}
	if j.EndDate != nil {
		dto.EndDate = j.EndDate.Format("2006-01-02")
	}
	if ov := toOverridesDTO(j.Overrides); ov != nil {
		dto.Overrides = ov
	}
	return dto
}

func toOverridesDTO(ov engine.JobOverrides) *JobOverridesDTO {
	empty := engine.JobOverrides{}
	if ov == empty {
		return nil
	}
	dto := &JobOverridesDTO{
		PlatformFeeEnabled: ov.PlatformFeeEnabled,
	}
	if ov.ConnectMode != nil {
		s := string(*ov.ConnectMode)
		dto.ConnectMode = &s
	}
	if ov.ConnectValue != nil {
		s := ov.ConnectValue.String()
		dto.ConnectValue = &s
	}
	if ov.PlatformFeeMode != nil {
		s := string(*ov.PlatformFeeMode)
		dto.PlatformFeeMode = &s
	}
	if ov.PlatformFeeValue != nil {
		s := ov.PlatformFeeValue.String()
		dto.PlatformFeeValue = &s
	}
	if ov.PlatformFeeApplyOn != nil {
		s := string(*ov.PlatformFeeApplyOn)
		dto.PlatformFeeApplyOn = &s
	}
	return dto
}

func toReceiptDTO(r engine.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:     string(r.ID),
		JobID:  string(r.JobID),
		Date:   r.Date.Format("2006-01-02"),
		Amount: r.Amount.String(),
		Source: string(r.Source),
		Notes:  r.Notes,
	}
}

func toAllocationDTO(a engine.Allocation) AllocationDTO {
	dto := AllocationDTO{
		ID:         string(a.ID),
		JobID:      string(a.JobID),
		Label:      a.Label,
		Role:       a.Role,
		ShareType:  string(a.ShareType),
		ShareValue: a.ShareValue.String(),
		Notes:      a.Notes,
	}
	if a.WorkerID != nil {
		s := string(*a.WorkerID)
		dto.WorkerID = &s
	}
	return dto
}

func toPaymentDTO(p engine.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:         string(p.ID),
		Code:       p.Code,
		WorkerID:   string(p.WorkerID),
		Amount:     p.Amount.String(),
		Date:       p.Date.Format("2006-01-02"),
		Method:     p.Method,
		Reference:  p.Reference,
		Notes:      p.Notes,
		IsPaid:     p.IsPaid,
		Provenance: string(p.Provenance),
	}
	if p.JobID != nil {
		s := string(*p.JobID)
		dto.JobID = &s
	}
	if p.AllocationID != nil {
		s := string(*p.AllocationID)
		dto.AllocationID = &s
	}
	return dto
}

func toExpenseDTO(e engine.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:       string(e.ID),
		Date:     e.Date.Format("2006-01-02"),
		Amount:   e.Amount.String(),
		Category: e.Category,
		Notes:    e.Notes,
	}
}
