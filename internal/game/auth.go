package game

import (
	"context"
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// AuthenticatePlayers reports whether every credential matches its player.
// It stops at the first mismatch.
func (s *Service) AuthenticatePlayers(ctx context.Context, auths []PlayerAuth) (bool, error) {
	ok := false
	err := s.runTx(ctx, func(tx Tx) error {
		ok = false
		for _, a := range auths {
			p, err := playerTx(ctx, tx, a.PlayerID, "playerId")
			if err != nil {
				return err
			}
			if !passwordMatches(p.PasswordHash, a.Password) {
				return nil
			}
		}
		ok = true
		return nil
	})
	return ok, err
}

// RequireAuth gates a mutation: the credential holders must be exactly the
// affected players, and every credential must be valid. scope names the
// affected ids in the mismatch message.
func (s *Service) RequireAuth(ctx context.Context, auths []PlayerAuth, affected []int64, scope string) error {
	ids := make([]int64, len(auths))
	for i, a := range auths {
		ids[i] = a.PlayerID
	}
	if !SameMembers(ids, affected) {
		return newError(ErrAuthFailure, "%s does not match auth.", scope)
	}
	ok, err := s.AuthenticatePlayers(ctx, auths)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrAuthFailure, "Invalid auth.")
	}
	return nil
}

// SameMembers reports whether a and b hold the same ids with the same
// multiplicities, ignoring order.
func SameMembers(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[int64]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}

func passwordMatches(hash, password string) bool {
	if utf8.RuneCountInString(password) != PasswordLength {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func hashPassword(password string, cost int) (string, error) {
	if utf8.RuneCountInString(password) != PasswordLength {
		return "", newError(ErrInvalidInput, "password must be exactly %d characters.", PasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", newError(ErrInvalidInput, "password is too long.")
	}
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
