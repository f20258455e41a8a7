// Package testutil provides testing utilities and helpers for the scrapewatch monitor.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

// RunBuilder provides a fluent interface for building Run objects for testing.
type RunBuilder struct {
	run *model.Run
}

// NewRun creates a new RunBuilder with sensible defaults.
func NewRun() *RunBuilder {
	now := time.Now().UTC()
	return &RunBuilder{
		run: &model.Run{
			ID:            uuid.NewString(),
			ExternalJobID: "ext-" + uuid.NewString()[:8],
			ProducerKind:  model.ProducerTelegram,
			Status:        model.RunStatusRunning,
			InputConfig:   json.RawMessage(`{"target": "https://t.me/example_group"}`),
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

// WithID sets the run id.
func (b *RunBuilder) WithID(id string) *RunBuilder {
	b.run.ID = id
	return b
}

// WithExternalJobID sets the external platform job id.
func (b *RunBuilder) WithExternalJobID(id string) *RunBuilder {
	b.run.ExternalJobID = id
	return b
}

// WithProducerKind sets the producer kind.
func (b *RunBuilder) WithProducerKind(kind model.ProducerKind) *RunBuilder {
	b.run.ProducerKind = kind
	return b
}

// WithStatus sets the run status.
func (b *RunBuilder) WithStatus(status model.RunStatus) *RunBuilder {
	b.run.Status = status
	return b
}

// WithItemsCount sets the items count.
func (b *RunBuilder) WithItemsCount(count int) *RunBuilder {
	b.run.ItemsCount = count
	return b
}

// WithResurrectCount sets the resurrect counter.
func (b *RunBuilder) WithResurrectCount(count int) *RunBuilder {
	b.run.ResurrectCount = count
	return b
}

// WithDatasetRef sets the dataset reference.
func (b *RunBuilder) WithDatasetRef(ref string) *RunBuilder {
	b.run.DatasetRef = &ref
	return b
}

// WithInputConfig sets the raw input config.
func (b *RunBuilder) WithInputConfig(raw string) *RunBuilder {
	b.run.InputConfig = json.RawMessage(raw)
	return b
}

// WithErrorMessage sets the error message.
func (b *RunBuilder) WithErrorMessage(msg string) *RunBuilder {
	b.run.ErrorMessage = &msg
	return b
}

// Build returns the constructed run.
func (b *RunBuilder) Build() *model.Run {
	return b.run
}

// MemberBuilder provides a fluent interface for building AudienceMember objects for testing.
type MemberBuilder struct {
	member *model.AudienceMember
}

// NewMember creates a new MemberBuilder with sensible defaults.
func NewMember() *MemberBuilder {
	now := time.Now().UTC()
	username := "example_user"
	return &MemberBuilder{
		member: &model.AudienceMember{
			ID:               uuid.NewString(),
			ProducerKind:     model.ProducerTelegram,
			SourceIdentifier: "https://t.me/example_group",
			EntityID:         "100001",
			EntityType:       "user",
			Username:         &username,
			Active:           true,
			RawPayload:       json.RawMessage(`{"id": 100001, "username": "example_user"}`),
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
}

// WithProducerKind sets the producer kind.
func (b *MemberBuilder) WithProducerKind(kind model.ProducerKind) *MemberBuilder {
	b.member.ProducerKind = kind
	return b
}

// WithSourceIdentifier sets the source identifier.
func (b *MemberBuilder) WithSourceIdentifier(source string) *MemberBuilder {
	b.member.SourceIdentifier = source
	return b
}

// WithEntityID sets the entity id.
func (b *MemberBuilder) WithEntityID(id string) *MemberBuilder {
	b.member.EntityID = id
	return b
}

// WithUsername sets the username.
func (b *MemberBuilder) WithUsername(username string) *MemberBuilder {
	b.member.Username = &username
	return b
}

// WithFlags sets the boolean trust flags.
func (b *MemberBuilder) WithFlags(verified, premium, bot, suspicious bool) *MemberBuilder {
	b.member.Verified = verified
	b.member.Premium = premium
	b.member.Bot = bot
	b.member.Suspicious = suspicious
	return b
}

// Build returns the constructed member.
func (b *MemberBuilder) Build() *model.AudienceMember {
	return b.member
}
