// Package greeting holds what the card says and when it says it.
package greeting

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Card struct {
	Name     string
	Heading  string
	Title    string
	Wishes   []string
	Confetti string
	// Candles is drawn as one number candle per digit.
	Candles string

	Year       int
	Month      time.Month
	SpecialDay int

	Music       string
	MusicOffset time.Duration
	MusicVolume float64

	Threshold    float64
	ConfirmDelay time.Duration
}

func Default() Card {
	return Card{
		Name:    "Linh",
		Heading: "Happy birthday, Linh",
		Title:   "Happy Birthday!",
		Wishes: []string{
			"Wishing you health, happiness and success in the year ahead!",
			"May every one of your dreams come true!",
		},
		Confetti:     "* o + * o +",
		Candles:      "25",
		Year:         2025,
		Month:        time.August,
		SpecialDay:   13,
		Music:        "music.mp3",
		MusicOffset:  4 * time.Second,
		MusicVolume:  0.5,
		Threshold:    50,
		ConfirmDelay: 500 * time.Millisecond,
	}
}

// WishText joins the title and wishes for copying.
func (c Card) WishText() string {
	lines := append([]string{c.Title}, c.Wishes...)
	return strings.Join(lines, "\n")
}

type yamlCard struct {
	Name         string   `yaml:"name"`
	Heading      string   `yaml:"heading"`
	Title        string   `yaml:"title"`
	Wishes       []string `yaml:"wishes"`
	Confetti     string   `yaml:"confetti"`
	Candles      string   `yaml:"candles"`
	Year         int      `yaml:"year"`
	Month        int      `yaml:"month"`
	SpecialDay   int      `yaml:"special_day"`
	Music        string   `yaml:"music"`
	MusicOffset  float64  `yaml:"music_offset_seconds"`
	MusicVolume  *float64 `yaml:"music_volume"`
	Threshold    float64  `yaml:"threshold"`
	ConfirmDelay int      `yaml:"confirm_delay_ms"`
}

// Load reads a card from YAML on top of Default. A missing file yields the
// defaults. Values that are out of range are rejected.
func Load(path string) (Card, error) {
	card := Default()
	if path == "" {
		return card, nil
	}

	rawData, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return card, nil
		}
		return card, fmt.Errorf("read card file: %w", err)
	}

	var fileData yamlCard
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return card, fmt.Errorf("parse card yaml: %w", err)
	}

	if err := applyYamlCard(&card, fileData); err != nil {
		return Default(), err
	}
	return card, nil
}

func applyYamlCard(card *Card, f yamlCard) error {
	if f.Name != "" {
		card.Name = f.Name
		if f.Heading == "" {
			card.Heading = "Happy birthday, " + f.Name
		}
	}
	if f.Heading != "" {
		card.Heading = f.Heading
	}
	if f.Title != "" {
		card.Title = f.Title
	}
	if len(f.Wishes) > 0 {
		card.Wishes = f.Wishes
	}
	if f.Confetti != "" {
		card.Confetti = f.Confetti
	}
	if f.Candles != "" {
		for _, r := range f.Candles {
			if r < '0' || r > '9' {
				return fmt.Errorf("candles %q: digits only", f.Candles)
			}
		}
		card.Candles = f.Candles
	}

	if f.Year != 0 {
		if f.Year < 1 || f.Year > 9999 {
			return fmt.Errorf("year %d out of range", f.Year)
		}
		card.Year = f.Year
	}
	if f.Month != 0 {
		if f.Month < 1 || f.Month > 12 {
			return fmt.Errorf("month %d out of range", f.Month)
		}
		card.Month = time.Month(f.Month)
	}
	if f.SpecialDay != 0 {
		card.SpecialDay = f.SpecialDay
	}

	if f.Music != "" {
		card.Music = f.Music
	}
	if f.MusicOffset < 0 {
		return fmt.Errorf("music offset %v: must not be negative", f.MusicOffset)
	}
	if f.MusicOffset > 0 {
		card.MusicOffset = time.Duration(f.MusicOffset * float64(time.Second))
	}
	if f.MusicVolume != nil {
		if *f.MusicVolume < 0 || *f.MusicVolume > 1 {
			return fmt.Errorf("music volume %v: want 0..1", *f.MusicVolume)
		}
		card.MusicVolume = *f.MusicVolume
	}

	if f.Threshold != 0 {
		if f.Threshold <= 0 || f.Threshold >= 255 {
			return fmt.Errorf("threshold %v: want 0..255", f.Threshold)
		}
		card.Threshold = f.Threshold
	}
	if f.ConfirmDelay < 0 {
		return fmt.Errorf("confirm delay %dms: must not be negative", f.ConfirmDelay)
	}
	if f.ConfirmDelay > 0 {
		card.ConfirmDelay = time.Duration(f.ConfirmDelay) * time.Millisecond
	}
	return nil
}
