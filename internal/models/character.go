package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alignment is one of the nine classic alignments, or empty when unset.
type Alignment string

const (
	LawfulGood     Alignment = "lawful good"
	NeutralGood    Alignment = "neutral good"
	ChaoticGood    Alignment = "chaotic good"
	LawfulNeutral  Alignment = "lawful neutral"
	TrueNeutral    Alignment = "true neutral"
	ChaoticNeutral Alignment = "chaotic neutral"
	LawfulEvil     Alignment = "lawful evil"
	NeutralEvil    Alignment = "neutral evil"
	ChaoticEvil    Alignment = "chaotic evil"
)

var alignments = map[Alignment]bool{
	LawfulGood: true, NeutralGood: true, ChaoticGood: true,
	LawfulNeutral: true, TrueNeutral: true, ChaoticNeutral: true,
	LawfulEvil: true, NeutralEvil: true, ChaoticEvil: true,
}

// ParseAlignment accepts any casing and surrounding whitespace.
func ParseAlignment(s string) (Alignment, error) {
	a := Alignment(strings.ToLower(strings.TrimSpace(s)))
	if a == "" || alignments[a] {
		return a, nil
	}
	return "", fmt.Errorf("unknown alignment %q", s)
}

// CoreStats are the six ability scores.
type CoreStats struct {
	Strength     int `json:"STR" bson:"STR"`
	Dexterity    int `json:"DEX" bson:"DEX"`
	Constitution int `json:"CON" bson:"CON"`
	Intelligence int `json:"INT" bson:"INT"`
	Wisdom       int `json:"WIS" bson:"WIS"`
	Charisma     int `json:"CHA" bson:"CHA"`
}

// Modifiers derives the ability modifiers, floor((score - 10) / 2).
func (c CoreStats) Modifiers() CoreStats {
	return CoreStats{
		Strength:     modifier(c.Strength),
		Dexterity:    modifier(c.Dexterity),
		Constitution: modifier(c.Constitution),
		Intelligence: modifier(c.Intelligence),
		Wisdom:       modifier(c.Wisdom),
		Charisma:     modifier(c.Charisma),
	}
}

func modifier(score int) int {
	d := score - 10
	if d < 0 && d%2 != 0 {
		return d/2 - 1
	}
	return d / 2
}

type CombatStats struct {
	Health     int `json:"HP" bson:"HP"`
	Armor      int `json:"AC" bson:"AC"`
	Speed      int `json:"speed" bson:"speed"`
	Initiative int `json:"initiative" bson:"initiative"`
}

type Stats struct {
	Core   CoreStats   `json:"main" bson:"main"`
	Combat CombatStats `json:"combat" bson:"combat"`
}

// DefaultStats is the stat block of a fresh level one character.
func DefaultStats() Stats {
	return Stats{
		Core: CoreStats{
			Strength: 10, Dexterity: 10, Constitution: 10,
			Intelligence: 10, Wisdom: 10, Charisma: 10,
		},
		Combat: CombatStats{Health: 8, Armor: 10, Speed: 30},
	}
}

// Value stores the stat block as a JSON column. It returns a string so the
// driver sends text rather than bytea.
func (s Stats) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON column written by Value.
func (s *Stats) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = Stats{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Stats", src)
	}
}

// Character is a persona owned by exactly one Account.
type Character struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"user"`
	CreatedAt time.Time `json:"creation"`
	UpdatedAt time.Time `json:"updated"`
	Biography string    `json:"biography"`
	Alignment Alignment `json:"alignment"`
	Race      string    `json:"race"`
	Languages []string  `json:"languages"`
	Stats     Stats     `json:"stats"`
}

// NormalizeLanguages trims, drops empties and de-duplicates (case-insensitive)
// while keeping the first spelling and order.
func NormalizeLanguages(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, l := range in {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}
