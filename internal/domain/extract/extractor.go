// Package extract maps raw, producer-specific dataset items into canonical
// audience members. One strategy exists per producer kind; unrecognized
// producers fall back to a generic strategy.
//
// Field lookup is an ordered candidate list per field per producer,
// expressed as JMESPath or-expressions ("user_id || telegram_id || id").
// The priority order is part of the contract: producers emit the same
// logical field under different names depending on actor version, and the
// most specific name wins.
package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

// Item is one raw dataset record as returned by the platform.
type Item map[string]any

// fieldExpr is a compiled ordered-candidate lookup.
type fieldExpr struct {
	src      string
	compiled jmespath.JMESPath
}

func mustExpr(src string) fieldExpr {
	c, err := jmespath.Compile(src)
	if err != nil {
		panic(fmt.Sprintf("compile field expression %q: %v", src, err))
	}
	return fieldExpr{src: src, compiled: c}
}

func (f fieldExpr) lookup(item Item) any {
	if f.compiled == nil {
		return nil
	}
	v, err := f.compiled.Search(map[string]any(item))
	if err != nil {
		return nil
	}
	return v
}

// strategy holds the extraction rules for one producer kind.
type strategy struct {
	entityID    fieldExpr
	username    fieldExpr
	displayName fieldExpr
	verified    fieldExpr
	premium     fieldExpr
	bot         fieldExpr
	suspicious  fieldExpr
	inactive    fieldExpr // truthy means the account is NOT active
	profileURL  string    // fmt template applied to the username, empty for none
	entityType  string
}

// Per-producer flag semantics differ and are re-derived explicitly here;
// a Telegram "premium" and a Twitter "blue verified" are not comparable
// and must never be copied across strategies.
var strategies = map[model.ProducerKind]*strategy{
	model.ProducerTelegram: {
		entityID:    mustExpr("user_id || telegram_id || id || userId"),
		username:    mustExpr("username || user_name || handle"),
		displayName: mustExpr("name || full_name"),
		verified:    mustExpr("is_verified || verified"),
		premium:     mustExpr("is_premium || premium"),
		bot:         mustExpr("is_bot || bot"),
		suspicious:  mustExpr("is_scam || is_fake || scam || fake"),
		inactive:    mustExpr("is_deleted || deleted"),
		profileURL:  "https://t.me/%s",
		entityType:  "user",
	},
	model.ProducerInstagram: {
		entityID:    mustExpr("pk || user_id || id || userId"),
		username:    mustExpr("username || handle"),
		displayName: mustExpr("full_name || name"),
		verified:    mustExpr("is_verified || verified"),
		premium:     mustExpr("is_business_account || is_business"),
		bot:         mustExpr("is_bot"),
		suspicious:  mustExpr("is_spam || is_flagged"),
		inactive:    mustExpr("is_deactivated"),
		profileURL:  "https://www.instagram.com/%s",
		entityType:  "user",
	},
	model.ProducerTwitter: {
		entityID:    mustExpr("rest_id || user_id || id || userId"),
		username:    mustExpr("screen_name || username || handle"),
		displayName: mustExpr("name || full_name"),
		verified:    mustExpr("verified || is_blue_verified"),
		premium:     mustExpr("is_blue_verified || premium"),
		bot:         mustExpr("possibly_bot || bot"),
		suspicious:  mustExpr("possibly_sensitive"),
		inactive:    mustExpr("suspended"),
		profileURL:  "https://x.com/%s",
		entityType:  "user",
	},
	model.ProducerGeneric: {
		entityID:    mustExpr("user_id || id || userId || member_id"),
		username:    mustExpr("username || user_name || handle || screen_name"),
		displayName: mustExpr("name || full_name || display_name"),
		verified:    mustExpr("verified || is_verified"),
		premium:     mustExpr("premium || is_premium"),
		bot:         mustExpr("bot || is_bot"),
		suspicious:  mustExpr("suspicious || is_suspicious"),
		inactive:    mustExpr("deleted || is_deleted"),
		entityType:  "user",
	},
}

// ExtractorOptions groups dependencies for Extractor.
type ExtractorOptions struct {
	Logger *slog.Logger // Optional: logs rejected-item counts at debug level
}

// Extractor converts raw dataset items into canonical audience members.
// It is stateless and safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor constructs a new Extractor.
func NewExtractor(opts ExtractorOptions) *Extractor {
	return &Extractor{logger: opts.Logger}
}

// Result is the outcome of extracting one dataset.
// Valid + Rejected always equals the number of input items.
type Result struct {
	Members  []*model.AudienceMember
	Rejected int
}

// Extract maps a single raw item to an AudienceMember. The second return
// is false when the item is rejected: entity ids that are empty, "0", or
// not representable as a positive integer are platform status/diagnostic
// messages embedded in the result stream, not real entities.
// Extract never fails on malformed input; malformed items are rejected.
func (e *Extractor) Extract(
	item Item,
	kind model.ProducerKind,
	sourceIdentifier string,
) (*model.AudienceMember, bool) {
	s := strategies[kind.Normalize()]

	entityID, ok := entityIDString(s.entityID.lookup(item))
	if !ok {
		return nil, false
	}

	raw, err := json.Marshal(item)
	if err != nil {
		// non-serializable item cannot be retained losslessly; drop it
		return nil, false
	}

	member := &model.AudienceMember{
		ProducerKind:     kind.Normalize(),
		SourceIdentifier: sourceIdentifier,
		EntityID:         entityID,
		EntityType:       s.entityType,
		Verified:         asBool(s.verified.lookup(item)),
		Premium:          asBool(s.premium.lookup(item)),
		Bot:              asBool(s.bot.lookup(item)),
		Suspicious:       asBool(s.suspicious.lookup(item)),
		Active:           !asBool(s.inactive.lookup(item)),
		RawPayload:       raw,
	}

	if username := asString(s.username.lookup(item)); username != "" {
		member.Username = &username
		if s.profileURL != "" {
			u := fmt.Sprintf(s.profileURL, username)
			member.ProfileURL = &u
		}
	}
	if displayName := displayNameFor(s, kind.Normalize(), item); displayName != "" {
		member.DisplayName = &displayName
	}

	return member, true
}

// ExtractAll maps a full dataset, excluding and counting rejected items.
func (e *Extractor) ExtractAll(
	items []Item,
	kind model.ProducerKind,
	sourceIdentifier string,
) Result {
	res := Result{Members: make([]*model.AudienceMember, 0, len(items))}
	for _, item := range items {
		member, ok := e.Extract(item, kind, sourceIdentifier)
		if !ok {
			res.Rejected++
			continue
		}
		res.Members = append(res.Members, member)
	}
	if res.Rejected > 0 && e.logger != nil {
		e.logger.Debug("rejected dataset items",
			"producer_kind", string(kind.Normalize()),
			"source", sourceIdentifier,
			"rejected", res.Rejected,
			"valid", len(res.Members),
		)
	}
	return res
}

// displayNameFor resolves the display name, composing Telegram first/last
// names when no single name field is present.
func displayNameFor(s *strategy, kind model.ProducerKind, item Item) string {
	if name := asString(s.displayName.lookup(item)); name != "" {
		return name
	}
	if kind != model.ProducerTelegram {
		return ""
	}
	first := asString(item["first_name"])
	last := asString(item["last_name"])
	return strings.TrimSpace(first + " " + last)
}

// entityIDString normalizes a raw id value and reports whether it is a
// positive integer identifier. JSON numbers arrive as float64 and must be
// integral; strings must parse as a positive integer.
func entityIDString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		trimmed := strings.TrimSpace(id)
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil || n <= 0 {
			return "", false
		}
		return strconv.FormatInt(n, 10), true
	case float64:
		if id <= 0 || id != math.Trunc(id) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case int:
		if id <= 0 {
			return "", false
		}
		return strconv.Itoa(id), true
	case int64:
		if id <= 0 {
			return "", false
		}
		return strconv.FormatInt(id, 10), true
	case json.Number:
		n, err := id.Int64()
		if err != nil || n <= 0 {
			return "", false
		}
		return strconv.FormatInt(n, 10), true
	default:
		return "", false
	}
}

// asBool coerces the loose boolean shapes producers emit: true, "true",
// "1", or a nonzero number.
func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "1" || s == "yes"
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

func asString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
