package model

import (
	"encoding/json"
	"errors"
	"time"
)

// AudienceMember is the canonical, deduplicated representation of one
// entity observed by any run. The composite identity
// (ProducerKind, SourceIdentifier, EntityID) is the sole deduplication key;
// re-ingesting the same identity refreshes the row rather than duplicating it.
type AudienceMember struct {
	ID               string          `json:"id"                      db:"id"`
	ProducerKind     ProducerKind    `json:"producer_kind"           db:"producer_kind"`
	SourceIdentifier string          `json:"source_identifier"       db:"source_identifier"`
	EntityID         string          `json:"entity_id"               db:"entity_id"`
	EntityType       string          `json:"entity_type"             db:"entity_type"`
	Username         *string         `json:"username,omitempty"      db:"username"`
	DisplayName      *string         `json:"display_name,omitempty"  db:"display_name"`
	ProfileURL       *string         `json:"profile_url,omitempty"   db:"profile_url"`
	Verified         bool            `json:"verified"                db:"verified"`
	Premium          bool            `json:"premium"                 db:"premium"`
	Bot              bool            `json:"bot"                     db:"bot"`
	Suspicious       bool            `json:"suspicious"              db:"suspicious"`
	Active           bool            `json:"active"                  db:"active"`
	RawPayload       json.RawMessage `json:"raw_payload"             db:"raw_payload"`
	CreatedAt        time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"              db:"updated_at"`
}

// Validate checks the composite identity is present before the member may
// reach the reconciliation writer.
func (m *AudienceMember) Validate() error {
	if !m.ProducerKind.Valid() {
		return errors.New("producer kind is required")
	}
	if m.SourceIdentifier == "" {
		return errors.New("source identifier is required")
	}
	if m.EntityID == "" {
		return errors.New("entity id is required")
	}
	return nil
}

// MemberIdentity is the composite deduplication key of an AudienceMember.
type MemberIdentity struct {
	ProducerKind     ProducerKind
	SourceIdentifier string
	EntityID         string
}

// Identity returns the member's composite deduplication key.
func (m *AudienceMember) Identity() MemberIdentity {
	return MemberIdentity{
		ProducerKind:     m.ProducerKind,
		SourceIdentifier: m.SourceIdentifier,
		EntityID:         m.EntityID,
	}
}

// ReconcileResult reports the outcome of one reconciliation write.
// Saved reflects only batches that succeeded; failed batches are counted
// but do not abort their siblings.
type ReconcileResult struct {
	Saved         int   `json:"saved"`
	NewCount      int   `json:"new_count"`
	UpdatedCount  int   `json:"updated_count"`
	FailedBatches int   `json:"failed_batches"`
	Error         error `json:"-"`
}
