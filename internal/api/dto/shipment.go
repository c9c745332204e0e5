package dto

import "time"

type CreateShipmentRequest struct {
	Origin            string     `json:"origin"`
	Destination       string     `json:"destination"`
	PriceAmount       int64      `json:"price_amount"`
	Currency          string     `json:"currency"`
	PackageDescriptor string     `json:"package_descriptor"`
	WindowStart       *time.Time `json:"window_start"`
	WindowEnd         *time.Time `json:"window_end"`
}

type ShipmentResponse struct {
	ID                string     `json:"id"`
	SenderID          string     `json:"sender_id"`
	CourierID         string     `json:"courier_id,omitempty"`
	Origin            string     `json:"origin"`
	Destination       string     `json:"destination"`
	PriceAmount       int64      `json:"price_amount"`
	Currency          string     `json:"currency"`
	PackageDescriptor string     `json:"package_descriptor"`
	WindowStart       *time.Time `json:"window_start,omitempty"`
	WindowEnd         *time.Time `json:"window_end,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
}

type AcceptMatchRequest struct {
	OfferID string `json:"offer_id"`
}

type MatchResponse struct {
	Shipment    ShipmentResponse     `json:"shipment"`
	Offer       OfferResponse        `json:"offer"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
}

type TransactionResponse struct {
	ID           string `json:"id"`
	ShipmentID   string `json:"shipment_id"`
	PayerID      string `json:"payer_id"`
	PayeeID      string `json:"payee_id"`
	Amount       int64  `json:"amount"`
	FeeAmount    int64  `json:"fee_amount"`
	PayoutAmount int64  `json:"payout_amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}
