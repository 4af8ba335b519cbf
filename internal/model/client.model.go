package model

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

type DocumentType string

const (
	DocumentCPF  DocumentType = "CPF"
	DocumentCNPJ DocumentType = "CNPJ"
)

type PlanType string

const (
	PlanPrepaid  PlanType = "prepaid"
	PlanPostpaid PlanType = "postpaid"
)

func (p PlanType) Valid() bool {
	return p == PlanPrepaid || p == PlanPostpaid
}

var (
	ErrInvalidDocument = errors.New("invalid document number")
	ErrInvalidPlan     = errors.New("plan type must be prepaid or postpaid")
)

type Client struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	DocumentID   string       `json:"documentId"`
	DocumentType DocumentType `json:"documentType"`
	PlanType     PlanType     `json:"planType"`
	Balance      Cents        `json:"balance"`
	Limit        Cents        `json:"limit"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (c *Client) IsPrepaid() bool {
	return c.PlanType == PlanPrepaid
}

// NormalizeDocument strips punctuation and checks the digit count for the
// document type: 11 for CPF, 14 for CNPJ.
func NormalizeDocument(id string, typ DocumentType) (string, DocumentType, error) {
	typ = DocumentType(strings.ToUpper(strings.TrimSpace(string(typ))))
	var b strings.Builder
	for _, r := range id {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case typ == DocumentCPF && len(digits) == 11:
	case typ == DocumentCNPJ && len(digits) == 14:
	default:
		return "", typ, ErrInvalidDocument
	}
	return digits, typ, nil
}

type ClientCreateRequest struct {
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	DocumentID   string       `json:"documentId"`
	DocumentType DocumentType `json:"documentType"`
	PlanType     PlanType     `json:"planType"`
}

func (r *ClientCreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("name is required")
	}
	doc, typ, err := NormalizeDocument(r.DocumentID, r.DocumentType)
	if err != nil {
		return err
	}
	r.DocumentID, r.DocumentType = doc, typ
	if r.PlanType == "" {
		r.PlanType = PlanPrepaid
	}
	if !r.PlanType.Valid() {
		return ErrInvalidPlan
	}
	return nil
}

// ClientUpdateRequest carries the staff-editable fields. Nil means unchanged.
type ClientUpdateRequest struct {
	Name     *string   `json:"name"`
	Email    *string   `json:"email"`
	Phone    *string   `json:"phone"`
	PlanType *PlanType `json:"planType"`
	Active   *bool     `json:"active"`
	Limit    *Cents    `json:"limit"`
}

func (r ClientUpdateRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return errors.New("name cannot be empty")
	}
	if r.PlanType != nil && !r.PlanType.Valid() {
		return ErrInvalidPlan
	}
	if r.Limit != nil && *r.Limit < 0 {
		return ErrInvalidAmount
	}
	return nil
}
