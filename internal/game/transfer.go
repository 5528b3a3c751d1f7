package game

import (
	"context"

	"github.com/google/uuid"
)

// CreateTransfer moves Received from sender to receiver. A negative amount
// moves that asset the other way, so each side must cover what it gives.
func (s *Service) CreateTransfer(ctx context.Context, in TransferInput) (Exchange, error) {
	var out Exchange
	err := s.runTx(ctx, func(tx Tx) error {
		if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "transfer"); err != nil {
			return err
		}
		month, err := currentMonth(ctx, tx)
		if err != nil {
			return err
		}
		sender, err := playerTx(ctx, tx, in.SenderID, "senderId")
		if err != nil {
			return err
		}
		receiver, err := playerTx(ctx, tx, in.ReceiverID, "receiverId")
		if err != nil {
			return err
		}
		senderBalance, err := balanceTx(ctx, tx, sender.ID)
		if err != nil {
			return err
		}
		receiverBalance, err := balanceTx(ctx, tx, receiver.ID)
		if err != nil {
			return err
		}
		for _, a := range Assets {
			given := in.Received[a]
			giver, balance := sender, senderBalance[a]
			if given < 0 {
				given = -given
				giver, balance = receiver, receiverBalance[a]
			}
			if given > balance {
				return newError(ErrInsufficientBalance, "transferred %s by player %s exceeds balance. (given: %s, balance: %s)",
					a, giver.Name, FormatUnits(given), FormatUnits(balance))
			}
		}

		senderID, receiverID := sender.ID, receiver.ID
		out, err = tx.AppendExchange(ctx, Exchange{
			Month:      month,
			Action:     ActionTransfer,
			SenderID:   &senderID,
			ReceiverID: &receiverID,
			BatchID:    uuid.NewString(),
			Received:   in.Received,
		})
		return err
	})
	if err != nil {
		return Exchange{}, err
	}
	s.log.Info("transfer recorded", "exchange_id", out.ID, "sender_id", in.SenderID, "receiver_id", in.ReceiverID)
	return out, nil
}
