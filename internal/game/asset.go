package game

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Asset is one of the four tradable resources.
type Asset int

const (
	Coin Asset = iota
	Food
	Lumber
	Iron
)

const NumAssets = 4

// Assets lists every asset in storage order.
var Assets = [NumAssets]Asset{Coin, Food, Lumber, Iron}

var assetNames = [NumAssets]string{"coin", "food", "lumber", "iron"}

func (a Asset) String() string {
	if a < 0 || int(a) >= NumAssets {
		return fmt.Sprintf("asset(%d)", int(a))
	}
	return assetNames[a]
}

// Title returns the capitalized name used in env config keys (taxCoinUpperBound).
func (a Asset) Title() string {
	name := a.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

func ParseAsset(s string) (Asset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range assetNames {
		if name == s {
			return Asset(i), nil
		}
	}
	return 0, fmt.Errorf("unknown asset %q", s)
}

// Amounts holds one signed micro-unit quantity per asset.
type Amounts [NumAssets]int64

func UnitAmounts(coin, food, lumber, iron int64) Amounts {
	return Amounts{
		coin * MicrosPerUnit,
		food * MicrosPerUnit,
		lumber * MicrosPerUnit,
		iron * MicrosPerUnit,
	}
}

func (a Amounts) Get(asset Asset) int64 { return a[asset] }

func (a Amounts) Add(b Amounts) Amounts {
	for i := range a {
		a[i] += b[i]
	}
	return a
}

func (a Amounts) Sub(b Amounts) Amounts {
	for i := range a {
		a[i] -= b[i]
	}
	return a
}

func (a Amounts) Neg() Amounts {
	for i := range a {
		a[i] = -a[i]
	}
	return a
}

func (a Amounts) IsZero() bool {
	return a == Amounts{}
}

// Scale multiplies every component by f, rounding to the nearest micro-unit.
func (a Amounts) Scale(f float64) Amounts {
	for i := range a {
		a[i] = int64(math.Round(float64(a[i]) * f))
	}
	return a
}

// Covers reports whether every component of a is at least b's.
func (a Amounts) Covers(b Amounts) bool {
	for i := range a {
		if a[i] < b[i] {
			return false
		}
	}
	return true
}

func (a Amounts) MarshalJSON() ([]byte, error) {
	m := make(map[string]int64, NumAssets)
	for _, asset := range Assets {
		m[asset.String()] = a[asset]
	}
	return json.Marshal(m)
}

func (a *Amounts) UnmarshalJSON(b []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Amounts
	for k, v := range m {
		asset, err := ParseAsset(k)
		if err != nil {
			return err
		}
		out[asset] = v
	}
	*a = out
	return nil
}

// Rates holds one float per asset, used for production means and deviations.
type Rates [NumAssets]float64

func (r Rates) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumAssets)
	for _, asset := range Assets {
		m[asset.String()] = r[asset]
	}
	return json.Marshal(m)
}

func (r *Rates) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Rates
	for k, v := range m {
		asset, err := ParseAsset(k)
		if err != nil {
			return err
		}
		out[asset] = v
	}
	*r = out
	return nil
}

// FormatUnits renders micro-units as a plain decimal without trailing zeros.
func FormatUnits(micros int64) string {
	return strconv.FormatFloat(MicrosToUnits(micros), 'f', -1, 64)
}
