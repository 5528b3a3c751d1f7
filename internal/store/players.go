package store

import (
	"context"

	"firmledger/internal/game"
)

func (t *tx) CreatePlayer(ctx context.Context, name, passwordHash string) (game.Player, error) {
	id, err := t.insert(ctx, "players", []string{"name", "password_hash"}, []any{name, passwordHash})
	if err != nil {
		return game.Player{}, err
	}
	return game.Player{ID: id, Name: name, PasswordHash: passwordHash}, nil
}

func (t *tx) Player(ctx context.Context, id int64) (game.Player, error) {
	var p game.Player
	err := t.queryRow(ctx, `
		SELECT id, name, password_hash
		FROM players
		WHERE id = ? AND deleted_at IS NULL
	`, id).Scan(&p.ID, &p.Name, &p.PasswordHash)
	if err != nil {
		return game.Player{}, notFound(err)
	}
	return p, nil
}

func (t *tx) Players(ctx context.Context) ([]game.Player, error) {
	rows, err := t.query(ctx, `
		SELECT id, name, password_hash
		FROM players
		WHERE deleted_at IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Player
	for rows.Next() {
		var p game.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.PasswordHash); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
