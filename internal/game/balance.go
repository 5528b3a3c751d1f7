package game

import "context"

// Balance derives a player's holdings from the ledger: everything received
// minus everything sent.
func (s *Service) Balance(ctx context.Context, playerID int64) (Amounts, error) {
	var out Amounts
	err := s.runTx(ctx, func(tx Tx) error {
		var err error
		out, err = balanceTx(ctx, tx, playerID)
		return err
	})
	return out, err
}

func balanceTx(ctx context.Context, tx Tx, playerID int64) (Amounts, error) {
	if _, err := playerTx(ctx, tx, playerID, "playerId"); err != nil {
		return Amounts{}, err
	}
	received, err := tx.SumExchanges(ctx, ExchangeFilter{ReceiverID: &playerID})
	if err != nil {
		return Amounts{}, err
	}
	sent, err := tx.SumExchanges(ctx, ExchangeFilter{SenderID: &playerID})
	if err != nil {
		return Amounts{}, err
	}
	return received.Sub(sent), nil
}
