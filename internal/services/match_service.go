package services

import (
	"context"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/platform/obs"
	"delivery-match-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// escrowHolder is the slice of the settlement service the coordinator
// needs: placing the hold right after a match commit.
type escrowHolder interface {
	Hold(ctx context.Context, shipmentID, payerID, payeeID string) (*domain.Transaction, error)
}

// MatchService coordinates the shipment/offer/conversation side of the
// marketplace: posting shipments, collecting offers, and forming at most
// one active match per shipment. All multi-row writes go through a single
// ledger commit guarded by the shipment's version.
type MatchService struct {
	ledger   ports.Ledger
	escrow   escrowHolder
	notifier ports.Notifier

	now   func() time.Time
	newID func() string
}

func NewMatchService(ledger ports.Ledger, escrow escrowHolder, notifier ports.Notifier) *MatchService {
	return &MatchService{
		ledger:   ledger,
		escrow:   escrow,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type CreateShipmentRequest struct {
	SenderID          string
	Origin            string
	Destination       string
	PriceAmount       int64
	Currency          string
	PackageDescriptor string
	WindowStart       time.Time
	WindowEnd         time.Time
}

// CreateShipment posts a new OPEN shipment for the sender.
func (s *MatchService) CreateShipment(ctx context.Context, req CreateShipmentRequest) (_ *domain.Shipment, err error) {
	defer obs.Time(ctx, "match.CreateShipment")(&err)

	if strings.TrimSpace(req.SenderID) == "" {
		return nil, errors.New("create shipment: sender id must not be empty")
	}
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, errors.New("create shipment: origin and destination must not be empty")
	}
	if req.PriceAmount <= 0 {
		return nil, errors.New("create shipment: price must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, errors.New("create shipment: currency must not be empty")
	}
	if !req.WindowEnd.IsZero() && req.WindowEnd.Before(req.WindowStart) {
		return nil, errors.New("create shipment: delivery window end precedes start")
	}

	shipment := &domain.Shipment{
		ID:                s.newID(),
		SenderID:          req.SenderID,
		Route:             domain.Route{Origin: req.Origin, Destination: req.Destination},
		PriceAmount:       req.PriceAmount,
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		PackageDescriptor: req.PackageDescriptor,
		Window:            domain.DeliveryWindow{Start: req.WindowStart, End: req.WindowEnd},
		Status:            domain.ShipmentOpen,
		CreatedAt:         s.now(),
	}

	cs := &ports.ChangeSet{NewShipments: []*domain.Shipment{shipment}}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("create shipment: %w", err)
	}

	return shipment, nil
}

type CreateOfferRequest struct {
	ShipmentID  string
	CourierID   string
	PriceAmount int64
	Message     string
}

// CreateOffer records a courier's PENDING bid on an OPEN shipment,
// lazily creating the sender/courier conversation and an OFFER message.
// The unchanged shipment row rides in the changeset so its version guard
// serializes offer creation against a concurrent match.
func (s *MatchService) CreateOffer(ctx context.Context, req CreateOfferRequest) (_ *domain.Offer, err error) {
	defer obs.Time(ctx, "match.CreateOffer")(&err)

	if strings.TrimSpace(req.CourierID) == "" {
		return nil, errors.New("create offer: courier id must not be empty")
	}
	if req.PriceAmount <= 0 {
		return nil, errors.New("create offer: price must be positive")
	}

	shipment, err := s.ledger.GetShipment(ctx, req.ShipmentID)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if shipment.SenderID == req.CourierID {
		return nil, fmt.Errorf("create offer: sender cannot bid on own shipment %s: %w", shipment.ID, domain.ErrUnauthorized)
	}
	if shipment.Status != domain.ShipmentOpen {
		return nil, fmt.Errorf("create offer: shipment %s status=%s: %w", shipment.ID, shipment.Status, domain.ErrWrongState)
	}

	existing, err := s.ledger.FindOpenOffer(ctx, shipment.ID, req.CourierID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("create offer: courier %s already has offer %s on shipment %s: %w",
			req.CourierID, existing.ID, shipment.ID, domain.ErrWrongState)
	}

	now := s.now()
	offer := &domain.Offer{
		ID:          s.newID(),
		ShipmentID:  shipment.ID,
		CourierID:   req.CourierID,
		PriceAmount: req.PriceAmount,
		Currency:    shipment.Currency,
		Status:      domain.OfferPending,
		CreatedAt:   now,
	}

	cs := &ports.ChangeSet{
		NewOffers: []*domain.Offer{offer},
		Shipments: []*domain.Shipment{shipment},
	}

	conv, err := s.ledger.FindConversationByShipment(ctx, shipment.ID, req.CourierID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		conv = &domain.Conversation{
			ID:         s.newID(),
			ShipmentID: shipment.ID,
			User1ID:    shipment.SenderID,
			User2ID:    req.CourierID,
			Status:     domain.ConversationPending,
		}
		bumped := conv.BumpUnread(shipment.SenderID)
		conv = &bumped
		cs.NewConversations = []*domain.Conversation{conv}
	case err != nil:
		return nil, fmt.Errorf("create offer: %w", err)
	default:
		bumped := conv.BumpUnread(shipment.SenderID)
		conv = &bumped
		cs.Conversations = []*domain.Conversation{conv}
	}

	content := req.Message
	if strings.TrimSpace(content) == "" {
		content = fmt.Sprintf("Offered %d %s for this delivery", offer.PriceAmount, offer.Currency)
	}
	cs.NewMessages = []*domain.Message{{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderID:       req.CourierID,
		Content:        content,
		Type:           domain.MessageOffer,
		Status:         domain.MessageSent,
		CreatedAt:      now,
	}}

	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	s.notify(ctx, shipment.SenderID, ports.EventOfferCreated, map[string]string{
		"shipment_id": shipment.ID,
		"offer_id":    offer.ID,
	})

	return offer, nil
}

// DeclineOffer rejects a single PENDING offer without matching. Only the
// shipment owner may decline.
func (s *MatchService) DeclineOffer(ctx context.Context, offerID, actorID string) (_ *domain.Offer, err error) {
	defer obs.Time(ctx, "match.DeclineOffer")(&err)

	offer, err := s.ledger.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("decline offer: %w", err)
	}

	shipment, err := s.ledger.GetShipment(ctx, offer.ShipmentID)
	if err != nil {
		return nil, fmt.Errorf("decline offer: %w", err)
	}
	if actorID != shipment.SenderID {
		return nil, fmt.Errorf("decline offer %s actor=%s: %w", offer.ID, actorID, domain.ErrUnauthorized)
	}

	rejected, err := offer.Reject()
	if err != nil {
		return nil, fmt.Errorf("decline offer: %w", err)
	}

	cs := &ports.ChangeSet{Offers: []*domain.Offer{&rejected}}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("decline offer: %w", err)
	}

	s.notify(ctx, offer.CourierID, ports.EventOfferDeclined, map[string]string{
		"shipment_id": shipment.ID,
		"offer_id":    offer.ID,
	})

	return &rejected, nil
}

// MatchResult is the outcome of a successful AcceptMatch.
type MatchResult struct {
	Shipment    *domain.Shipment
	Offer       *domain.Offer
	Transaction *domain.Transaction
}

// AcceptMatch forms the match: shipment OPEN -> MATCHED, the chosen offer
// ACCEPTED, all sibling PENDING offers REJECTED and the winning courier's
// conversation MATCHED, atomically under the shipment's version. After the
// durable commit it places the escrow hold; if the hold fails the whole
// match is reverted so a MATCHED shipment never exists without held funds.
//
// Two concurrent calls on one shipment resolve through the shared shipment
// row: exactly one commit wins, the loser sees ErrVersionConflict or
// ErrWrongState on re-read.
func (s *MatchService) AcceptMatch(ctx context.Context, shipmentID, offerID, actorID string) (_ *MatchResult, err error) {
	defer obs.Time(ctx, "match.AcceptMatch")(&err)

	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("accept match: %w", err)
	}
	if actorID != shipment.SenderID {
		return nil, fmt.Errorf("accept match shipment %s actor=%s: %w", shipmentID, actorID, domain.ErrUnauthorized)
	}

	offer, err := s.ledger.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("accept match: %w", err)
	}
	if offer.ShipmentID != shipment.ID {
		return nil, fmt.Errorf("accept match: offer %s belongs to shipment %s, not %s: %w",
			offer.ID, offer.ShipmentID, shipment.ID, domain.ErrWrongState)
	}
	if offer.Status != domain.OfferPending {
		return nil, fmt.Errorf("accept match: offer %s status=%s: %w", offer.ID, offer.Status, domain.ErrWrongState)
	}

	matched, err := shipment.Match(offer.CourierID)
	if err != nil {
		return nil, fmt.Errorf("accept match: %w", err)
	}
	accepted, err := offer.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept match: %w", err)
	}

	cs := &ports.ChangeSet{
		Shipments: []*domain.Shipment{&matched},
		Offers:    []*domain.Offer{&accepted},
	}

	siblings, err := s.ledger.ListOffersByShipment(ctx, shipment.ID)
	if err != nil {
		return nil, fmt.Errorf("accept match: %w", err)
	}
	var rejectedIDs []string
	var losingCouriers []string
	for _, sib := range siblings {
		if sib.ID == offer.ID || sib.Status != domain.OfferPending {
			continue
		}
		rej, err := sib.Reject()
		if err != nil {
			return nil, fmt.Errorf("accept match: reject sibling %s: %w", sib.ID, err)
		}
		cs.Offers = append(cs.Offers, &rej)
		rejectedIDs = append(rejectedIDs, sib.ID)
		losingCouriers = append(losingCouriers, sib.CourierID)
	}

	// The winning courier's conversation follows the shipment into MATCHED
	// and carries the system message. Missing conversation is tolerated:
	// nothing forces a courier to have chatted before the match.
	priorConvStatus := domain.ConversationPending
	conv, err := s.ledger.FindConversationByShipment(ctx, shipment.ID, offer.CourierID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		conv = nil
	case err != nil:
		return nil, fmt.Errorf("accept match: %w", err)
	default:
		priorConvStatus = conv.Status
		m := conv.MarkMatched().BumpUnread(offer.CourierID)
		conv = &m
		cs.Conversations = []*domain.Conversation{conv}
		cs.NewMessages = []*domain.Message{{
			ID:             s.newID(),
			ConversationID: conv.ID,
			SenderID:       shipment.SenderID,
			Content:        "Offer accepted. Payment is held in escrow until delivery is confirmed.",
			Type:           domain.MessageMatchAccepted,
			Status:         domain.MessageSent,
			CreatedAt:      s.now(),
		}}
	}

	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("accept match: %w", err)
	}

	tx, holdErr := s.escrow.Hold(ctx, shipment.ID, shipment.SenderID, offer.CourierID)
	if holdErr != nil {
		if revertErr := s.revertMatchWithRetry(ctx, shipment.ID, offer.ID, rejectedIDs, priorConvStatus); revertErr != nil {
			// Retries exhausted on a storage fault. The shipment is stuck
			// matched without held funds; flag it for operator repair. The
			// caller still learns the hold failed.
			log.Printf("op=match.AcceptMatch shipment_id=%s revert_failed err=%v", shipment.ID, revertErr)
		}
		return nil, fmt.Errorf("accept match shipment %s: %w: %v", shipment.ID, domain.ErrPaymentHoldFailed, holdErr)
	}

	s.notify(ctx, offer.CourierID, ports.EventMatchAccepted, map[string]string{
		"shipment_id": shipment.ID,
		"offer_id":    offer.ID,
	})
	for _, courierID := range losingCouriers {
		s.notify(ctx, courierID, ports.EventOfferLost, map[string]string{"shipment_id": shipment.ID})
	}

	return &MatchResult{Shipment: &matched, Offer: &accepted, Transaction: tx}, nil
}

// Concurrent chat or a racing pickup report can bump versions between the
// failed hold and the compensation commit; each retry re-reads everything.
const revertAttempts = 3

func (s *MatchService) revertMatchWithRetry(ctx context.Context, shipmentID, offerID string, rejectedIDs []string, priorConvStatus domain.ConversationStatus) error {
	var err error
	for attempt := 0; attempt < revertAttempts; attempt++ {
		err = s.revertMatch(ctx, shipmentID, offerID, rejectedIDs, priorConvStatus)
		if err == nil || !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
	}
	return err
}

// revertMatch compensates a committed match whose escrow hold failed:
// shipment back to OPEN, winning offer back to PENDING, rejected siblings
// reopened, conversation restored. Runs as its own commit with freshly
// loaded versions.
func (s *MatchService) revertMatch(ctx context.Context, shipmentID, offerID string, rejectedIDs []string, priorConvStatus domain.ConversationStatus) error {
	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return fmt.Errorf("revert match: %w", err)
	}
	reverted, err := shipment.Unmatch()
	if err != nil {
		return fmt.Errorf("revert match: %w", err)
	}

	offer, err := s.ledger.GetOffer(ctx, offerID)
	if err != nil {
		return fmt.Errorf("revert match: %w", err)
	}
	reopened, err := offer.Reopen()
	if err != nil {
		return fmt.Errorf("revert match: %w", err)
	}

	cs := &ports.ChangeSet{
		Shipments: []*domain.Shipment{&reverted},
		Offers:    []*domain.Offer{&reopened},
	}

	for _, id := range rejectedIDs {
		sib, err := s.ledger.GetOffer(ctx, id)
		if err != nil {
			return fmt.Errorf("revert match: %w", err)
		}
		r, err := sib.Reopen()
		if err != nil {
			return fmt.Errorf("revert match: %w", err)
		}
		cs.Offers = append(cs.Offers, &r)
	}

	conv, err := s.ledger.FindConversationByShipment(ctx, shipmentID, offer.CourierID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("revert match: %w", err)
	default:
		r := conv.RevertMatch(priorConvStatus)
		cs.Conversations = []*domain.Conversation{&r}
	}

	if err := s.ledger.Commit(ctx, cs); err != nil {
		return fmt.Errorf("revert match: %w", err)
	}

	return nil
}

// MarkInTransit records pickup by the matched courier.
func (s *MatchService) MarkInTransit(ctx context.Context, shipmentID, actorID string) (_ *domain.Shipment, err error) {
	defer obs.Time(ctx, "match.MarkInTransit")(&err)

	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("mark in transit: %w", err)
	}

	moved, err := shipment.MarkInTransit(actorID)
	if err != nil {
		return nil, fmt.Errorf("mark in transit: %w", err)
	}

	cs := &ports.ChangeSet{Shipments: []*domain.Shipment{&moved}}
	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("mark in transit: %w", err)
	}

	s.notify(ctx, shipment.SenderID, ports.EventShipmentInTransit, map[string]string{"shipment_id": shipment.ID})

	return &moved, nil
}

// WithdrawShipment cancels a never-matched shipment. There is no
// transaction to refund on this path; a matched shipment must go through
// the settlement refund instead.
func (s *MatchService) WithdrawShipment(ctx context.Context, shipmentID, actorID string) (_ *domain.Shipment, err error) {
	defer obs.Time(ctx, "match.WithdrawShipment")(&err)

	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("withdraw shipment: %w", err)
	}
	if actorID != shipment.SenderID {
		return nil, fmt.Errorf("withdraw shipment %s actor=%s: %w", shipmentID, actorID, domain.ErrUnauthorized)
	}
	if shipment.Status != domain.ShipmentOpen {
		return nil, fmt.Errorf("withdraw shipment %s status=%s: %w", shipmentID, shipment.Status, domain.ErrWrongState)
	}

	cancelled, err := shipment.Cancel()
	if err != nil {
		return nil, fmt.Errorf("withdraw shipment: %w", err)
	}

	cs := &ports.ChangeSet{Shipments: []*domain.Shipment{&cancelled}}

	offers, err := s.ledger.ListOffersByShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("withdraw shipment: %w", err)
	}
	var pendingCouriers []string
	for _, o := range offers {
		if o.Status != domain.OfferPending {
			continue
		}
		rej, err := o.Reject()
		if err != nil {
			return nil, fmt.Errorf("withdraw shipment: reject offer %s: %w", o.ID, err)
		}
		cs.Offers = append(cs.Offers, &rej)
		pendingCouriers = append(pendingCouriers, o.CourierID)
	}

	if err := s.ledger.Commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("withdraw shipment: %w", err)
	}

	for _, courierID := range pendingCouriers {
		s.notify(ctx, courierID, ports.EventShipmentWithdrawn, map[string]string{"shipment_id": shipment.ID})
	}

	return &cancelled, nil
}

// GetShipment exposes a read of one shipment for the API layer.
func (s *MatchService) GetShipment(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	shipment, err := s.ledger.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	return shipment, nil
}

// notify is fire-and-forget: delivery failures never fail a committed
// transition.
func (s *MatchService) notify(ctx context.Context, userID, kind string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		log.Printf("op=notify user_id=%s kind=%s err=%v", userID, kind, err)
	}
}
