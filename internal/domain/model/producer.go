package model

import (
	"fmt"
	"strings"
)

// ProducerKind is the category of external data source a run belongs to.
// It selects the extraction strategy for the run's raw dataset items.
type ProducerKind string

const (
	// ProducerTelegram covers Telegram group-member scraping actors.
	ProducerTelegram ProducerKind = "telegram"
	// ProducerInstagram covers Instagram follower/engagement scraping actors.
	ProducerInstagram ProducerKind = "instagram"
	// ProducerTwitter covers Twitter/X follower scraping actors.
	ProducerTwitter ProducerKind = "twitter"
	// ProducerGeneric is the fallback for unrecognized producer actors.
	ProducerGeneric ProducerKind = "generic"
)

// Valid returns true if the ProducerKind is a known kind, including the generic fallback.
func (k ProducerKind) Valid() bool {
	switch k {
	case ProducerTelegram, ProducerInstagram, ProducerTwitter, ProducerGeneric:
		return true
	}
	return false
}

// Normalize maps an arbitrary producer label to a known kind, falling back
// to generic. Unrecognized producers must never break extraction.
func (k ProducerKind) Normalize() ProducerKind {
	if k.Valid() {
		return k
	}
	return ProducerGeneric
}

// UnmarshalText implements encoding.TextUnmarshaler for ProducerKind.
func (k *ProducerKind) UnmarshalText(text []byte) error {
	v := ProducerKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid ProducerKind: %q", string(text))
	}
	*k = v
	return nil
}
