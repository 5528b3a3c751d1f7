package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Keyring stores player passwords locally so mutations can carry one
// credential per affected player.
type Keyring struct {
	Players map[int64]string `json:"players"`

	path string
}

func baseDir() (string, error) {
	if dir := os.Getenv("FL_HOME"); dir != "" {
		return dir, os.MkdirAll(dir, 0o700)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".fl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// LoadKeyring reads the keyring, returning an empty one when none is saved.
func LoadKeyring() (*Keyring, error) {
	dir, err := baseDir()
	if err != nil {
		return nil, err
	}
	return loadKeyringAt(filepath.Join(dir, "keyring.json"))
}

func loadKeyringAt(path string) (*Keyring, error) {
	k := &Keyring{Players: map[int64]string{}, path: path}
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return k, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, k); err != nil {
		return nil, fmt.Errorf("parse keyring: %w", err)
	}
	if k.Players == nil {
		k.Players = map[int64]string{}
	}
	return k, nil
}

func (k *Keyring) Save() error {
	body, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, body, 0o600)
}

func (k *Keyring) Set(playerID int64, password string) {
	k.Players[playerID] = password
}

func (k *Keyring) Remove(playerID int64) bool {
	_, ok := k.Players[playerID]
	delete(k.Players, playerID)
	return ok
}

func (k *Keyring) IDs() []int64 {
	ids := make([]int64, 0, len(k.Players))
	for id := range k.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Credentials returns one credential per id, in order, including repeats.
func (k *Keyring) Credentials(ids ...int64) ([]Credential, error) {
	out := make([]Credential, 0, len(ids))
	for _, id := range ids {
		pw, ok := k.Players[id]
		if !ok {
			return nil, fmt.Errorf("no saved password for player %d: run `fl login %d`", id, id)
		}
		out = append(out, Credential{PlayerID: id, Password: pw})
	}
	return out, nil
}
