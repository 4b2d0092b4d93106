// Package invoicing issues government-authorized sequential invoice numbers.
// Each tax authorization (CAI) grants a bounded numbering range; numbers must
// be strictly increasing and gapless, so allocation serializes on a row lock.
package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CorrelativeState enumerates the lifecycle of a numbering authorization.
type CorrelativeState string

const (
	CorrelativeActive    CorrelativeState = "ACTIVE"
	CorrelativeInactive  CorrelativeState = "INACTIVE"
	CorrelativeExpired   CorrelativeState = "EXPIRED"
	CorrelativeExhausted CorrelativeState = "EXHAUSTED"
)

// ValidCorrelativeState reports whether s belongs to the closed state set.
func ValidCorrelativeState(s CorrelativeState) bool {
	switch s {
	case CorrelativeActive, CorrelativeInactive, CorrelativeExpired, CorrelativeExhausted:
		return true
	}
	return false
}

// Correlative is a CAI numbering authorization. Current is the last number
// issued; the next allocation returns Current+1 and fails once Current has
// reached RangeEnd.
type Correlative struct {
	ID                int64            `json:"id"`
	CAI               string           `json:"cai"`
	Prefix            string           `json:"prefix"`
	RangeStart        int64            `json:"range_start"`
	RangeEnd          int64            `json:"range_end"`
	Current           int64            `json:"current_correlative"`
	AuthorizationDate time.Time        `json:"authorization_date"`
	ExpirationDate    time.Time        `json:"expiration_date"`
	State             CorrelativeState `json:"state"`
	CreatedAt         time.Time        `json:"created_at"`
}

// FormatNumber renders an invoice number as prefix plus the correlative
// zero-padded to eight digits.
func FormatNumber(prefix string, correlative int64) string {
	return fmt.Sprintf("%s%08d", prefix, correlative)
}

// ClientType distinguishes final consumers from RTN-bearing clients.
type ClientType string

const (
	ClientFinalConsumer ClientType = "final_consumer"
	ClientRTN           ClientType = "rtn"
)

// ValidClientType reports whether t belongs to the closed set.
func ValidClientType(t ClientType) bool {
	return t == ClientFinalConsumer || t == ClientRTN
}

// InvoiceState enumerates invoice states.
type InvoiceState string

const (
	InvoiceIssued InvoiceState = "ISSUED"
	InvoiceVoid   InvoiceState = "VOID"
)

// Invoice is an issued fiscal document carrying an allocated number and the
// CAI metadata it was issued under.
type Invoice struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	CAI           string          `json:"cai"`
	CorrelativeID int64           `json:"correlative_id"`
	ClientType    ClientType      `json:"client_type"`
	ClientName    string          `json:"client_name"`
	RTN           *string         `json:"rtn,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	State         InvoiceState    `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RelationKind names the single payment source an invoice documents.
type RelationKind string

const (
	RelationVisit      RelationKind = "visit"
	RelationQuotation  RelationKind = "quotation"
	RelationMembership RelationKind = "membership"
)

// ValidRelationKind reports whether k belongs to the closed set.
func ValidRelationKind(k RelationKind) bool {
	switch k {
	case RelationVisit, RelationQuotation, RelationMembership:
		return true
	}
	return false
}

// InvoiceRelation links an invoice to exactly one payment source.
type InvoiceRelation struct {
	ID        int64        `json:"id"`
	InvoiceID int64        `json:"invoice_id"`
	Kind      RelationKind `json:"kind"`
	PaymentID int64        `json:"payment_id"`
}

// InvoiceWithCorrelative is the lookup payload for display: the invoice plus
// its numbering range metadata.
type InvoiceWithCorrelative struct {
	Invoice     Invoice     `json:"invoice"`
	Correlative Correlative `json:"correlative"`
}
