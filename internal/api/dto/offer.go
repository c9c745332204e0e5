package dto

import "time"

type CreateOfferRequest struct {
	PriceAmount int64  `json:"price_amount"`
	Message     string `json:"message"`
}

type OfferResponse struct {
	ID          string    `json:"id"`
	ShipmentID  string    `json:"shipment_id"`
	CourierID   string    `json:"courier_id"`
	PriceAmount int64     `json:"price_amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
