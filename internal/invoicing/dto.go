package invoicing

import "github.com/shopspring/decimal"

// CreateInvoiceRequest is the POST /invoices body. Exactly one of VisitID,
// QuotationID and MembershipID must be set.
type CreateInvoiceRequest struct {
	CAI          string          `json:"cai,omitempty" validate:"max=64"`
	ClientType   ClientType      `json:"type" validate:"required"`
	ClientName   string          `json:"client_name" validate:"required,max=120"`
	RTN          *string         `json:"rtn,omitempty" validate:"omitempty,max=20"`
	Subtotal     decimal.Decimal `json:"subtotal" validate:"required"`
	Tax          decimal.Decimal `json:"isv"`
	Total        decimal.Decimal `json:"total" validate:"required"`
	VisitID      *int64          `json:"visit_id,omitempty" validate:"omitempty,gt=0"`
	QuotationID  *int64          `json:"quotation_id,omitempty" validate:"omitempty,gt=0"`
	MembershipID *int64          `json:"membership_id,omitempty" validate:"omitempty,gt=0"`
}

// source returns the single payment source named by the request, reporting
// how many were supplied.
func (r CreateInvoiceRequest) source() (RelationKind, int64, int) {
	var (
		kind  RelationKind
		id    int64
		count int
	)
	if r.VisitID != nil {
		kind, id, count = RelationVisit, *r.VisitID, count+1
	}
	if r.QuotationID != nil {
		kind, id, count = RelationQuotation, *r.QuotationID, count+1
	}
	if r.MembershipID != nil {
		kind, id, count = RelationMembership, *r.MembershipID, count+1
	}
	return kind, id, count
}

// CreateCorrelativeRequest is the POST /correlatives body.
type CreateCorrelativeRequest struct {
	CAI               string `json:"cai" validate:"required,max=64"`
	Prefix            string `json:"prefix" validate:"required,max=20"`
	RangeStart        int64  `json:"range_start" validate:"required,gt=0"`
	RangeEnd          int64  `json:"range_end" validate:"required,gt=0"`
	AuthorizationDate string `json:"authorization_date" validate:"required"`
	ExpirationDate    string `json:"expiration_date" validate:"required"`
}
