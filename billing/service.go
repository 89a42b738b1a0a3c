// Package billing is the typed client for business and invoice data. Every
// call goes through the shared intercepted transport, so credential attach
// and renewal apply uniformly and callers never handle tokens.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgerline/ledgerline-go/transport"
)

// Business is a business account.
type Business struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"taxId,omitempty"`
}

// InvoiceItem is one line of an invoice. Amounts are computed server-side;
// the client only carries them.
type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount,omitempty"`
}

// Invoice is an issued or draft invoice.
type Invoice struct {
	ID         string        `json:"id,omitempty"`
	Number     string        `json:"number,omitempty"`
	BusinessID string        `json:"businessId"`
	ClientID   string        `json:"clientId,omitempty"`
	Items      []InvoiceItem `json:"items,omitempty"`
	Total      float64       `json:"total,omitempty"`
	Status     string        `json:"status,omitempty"`
	IssuedAt   *time.Time    `json:"issuedAt,omitempty"`
	DueAt      *time.Time    `json:"dueAt,omitempty"`
}

// Service issues billing calls through the intercepted transport.
type Service struct {
	client *transport.Client
}

func NewService(client *transport.Client) (*Service, error) {
	if client == nil {
		return nil, errors.New("[NewService] client is required")
	}
	return &Service{client: client}, nil
}

// Businesses lists the businesses the authenticated user belongs to.
func (s *Service) Businesses(ctx context.Context) ([]Business, error) {
	var businesses []Business
	if err := s.client.Get(ctx, "/businesses", &businesses); err != nil {
		return nil, errors.Wrap(err, "[Service.Businesses] listing businesses")
	}
	return businesses, nil
}

// Invoices lists the invoices of one business.
func (s *Service) Invoices(ctx context.Context, businessID string) ([]Invoice, error) {
	if businessID == "" {
		return nil, errors.New("[Service.Invoices] businessID is required")
	}
	var invoices []Invoice
	path := fmt.Sprintf("/businesses/%s/invoices", businessID)
	if err := s.client.Get(ctx, path, &invoices); err != nil {
		return nil, errors.Wrap(err, "[Service.Invoices] listing invoices")
	}
	return invoices, nil
}

// CreateInvoice creates a draft invoice and returns it with the
// server-assigned fields filled in.
func (s *Service) CreateInvoice(ctx context.Context, invoice Invoice) (*Invoice, error) {
	if invoice.BusinessID == "" {
		return nil, errors.New("[Service.CreateInvoice] businessID is required")
	}
	var created Invoice
	path := fmt.Sprintf("/businesses/%s/invoices", invoice.BusinessID)
	if err := s.client.Post(ctx, path, invoice, &created); err != nil {
		return nil, errors.Wrap(err, "[Service.CreateInvoice] creating invoice")
	}
	return &created, nil
}
