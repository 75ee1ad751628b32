package appstore

import (
	"context"
	"fmt"

	"github.com/awa/go-iap/appstore"
)

// Service is the slice of the App Store verification surface the adapter
// consumes: one receipt in, the store's verdict out. Only transport failures
// surface as errors; every store verdict, valid or not, comes back in the
// response status.
type Service interface {
	VerifyReceipt(ctx context.Context, receiptData string) (*appstore.IAPResponse, error)
}

// appleService is the production binding over the go-iap verifyReceipt
// client, which retries against the sandbox environment on its own when the
// store answers 21007.
type appleService struct {
	client       *appstore.Client
	sharedSecret string
}

// NewService builds the production App Store binding. The shared secret is
// required for auto-renewable subscription receipts and ignored otherwise.
func NewService(sharedSecret string) Service {
	return &appleService{
		client:       appstore.New(),
		sharedSecret: sharedSecret,
	}
}

func (s *appleService) VerifyReceipt(ctx context.Context, receiptData string) (*appstore.IAPResponse, error) {
	req := appstore.IAPRequest{
		ReceiptData: receiptData,
		Password:    s.sharedSecret,
	}

	resp := &appstore.IAPResponse{}
	if err := s.client.Verify(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("failed to verify receipt: %w", err)
	}
	return resp, nil
}
