package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

const testSource = "https://t.me/example_group"

func newTestExtractor() *Extractor {
	return NewExtractor(ExtractorOptions{})
}

func TestExtract_Telegram(t *testing.T) {
	e := newTestExtractor()

	member, ok := e.Extract(Item{
		"user_id":    float64(123456),
		"username":   "alice_t",
		"first_name": "Alice",
		"last_name":  "Smith",
		"is_premium": true,
		"is_bot":     false,
		"is_scam":    false,
	}, model.ProducerTelegram, testSource)

	require.True(t, ok)
	assert.Equal(t, "123456", member.EntityID)
	assert.Equal(t, model.ProducerTelegram, member.ProducerKind)
	assert.Equal(t, testSource, member.SourceIdentifier)
	assert.Equal(t, "user", member.EntityType)
	require.NotNil(t, member.Username)
	assert.Equal(t, "alice_t", *member.Username)
	require.NotNil(t, member.ProfileURL)
	assert.Equal(t, "https://t.me/alice_t", *member.ProfileURL)
	require.NotNil(t, member.DisplayName)
	assert.Equal(t, "Alice Smith", *member.DisplayName)
	assert.True(t, member.Premium)
	assert.False(t, member.Bot)
	assert.True(t, member.Active)
	assert.NotEmpty(t, member.RawPayload)
}

func TestExtract_EntityIDFallbackOrder(t *testing.T) {
	e := newTestExtractor()

	// user_id wins over id when both are present.
	member, ok := e.Extract(Item{
		"user_id": "777",
		"id":      "888",
	}, model.ProducerTelegram, testSource)
	require.True(t, ok)
	assert.Equal(t, "777", member.EntityID)

	// A null primary field falls through to the next candidate.
	member, ok = e.Extract(Item{
		"user_id": nil,
		"id":      float64(888),
	}, model.ProducerTelegram, testSource)
	require.True(t, ok)
	assert.Equal(t, "888", member.EntityID)
}

func TestExtract_RejectsNonEntityItems(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name string
		item Item
	}{
		{"missing id", Item{"username": "ghost"}},
		{"empty id", Item{"user_id": ""}},
		{"zero id", Item{"user_id": "0"}},
		{"zero numeric id", Item{"user_id": float64(0)}},
		{"negative id", Item{"user_id": float64(-5)}},
		{"fractional id", Item{"user_id": 12.5}},
		{"diagnostic message as id", Item{"user_id": "please check the logs"}},
		{"null id", Item{"user_id": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			member, ok := e.Extract(tt.item, model.ProducerTelegram, testSource)
			assert.False(t, ok)
			assert.Nil(t, member)
		})
	}
}

func TestExtract_TwitterFlags(t *testing.T) {
	e := newTestExtractor()

	member, ok := e.Extract(Item{
		"rest_id":          "99001",
		"screen_name":      "bob",
		"name":             "Bob",
		"is_blue_verified": true,
		"suspended":        true,
	}, model.ProducerTwitter, "somehandle")

	require.True(t, ok)
	assert.Equal(t, "99001", member.EntityID)
	require.NotNil(t, member.ProfileURL)
	assert.Equal(t, "https://x.com/bob", *member.ProfileURL)
	assert.True(t, member.Verified)
	assert.True(t, member.Premium)
	assert.False(t, member.Active)
}

func TestExtract_UnknownKindUsesGenericStrategy(t *testing.T) {
	e := newTestExtractor()

	member, ok := e.Extract(Item{
		"member_id": "314",
		"handle":    "carol",
	}, model.ProducerKind("somethingelse"), "source-x")

	require.True(t, ok)
	assert.Equal(t, model.ProducerGeneric, member.ProducerKind)
	assert.Equal(t, "314", member.EntityID)
	require.NotNil(t, member.Username)
	assert.Equal(t, "carol", *member.Username)
	// Generic strategy has no profile URL template.
	assert.Nil(t, member.ProfileURL)
}

func TestExtract_BoolCoercion(t *testing.T) {
	e := newTestExtractor()

	member, ok := e.Extract(Item{
		"user_id":     "55",
		"is_verified": "true",
		"is_premium":  float64(1),
		"is_bot":      "no",
	}, model.ProducerTelegram, testSource)

	require.True(t, ok)
	assert.True(t, member.Verified)
	assert.True(t, member.Premium)
	assert.False(t, member.Bot)
}

func TestExtractAll_CountsRejected(t *testing.T) {
	e := newTestExtractor()

	items := []Item{
		{"user_id": "1", "username": "a"},
		{"user_id": "0"},
		{"user_id": "2", "username": "b"},
		{"status": "ok"},
	}

	res := e.ExtractAll(items, model.ProducerTelegram, testSource)

	assert.Len(t, res.Members, 2)
	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, len(items), len(res.Members)+res.Rejected)
}
