package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/data/pgxutil"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

var (
	// ErrMembersNotConfigured is returned when the member store has no
	// database connection. Surfaced as a named error instead of a silent
	// zero-row write.
	ErrMembersNotConfigured = errors.New("audience member store is not configured")
	// ErrNoMembers is returned when an upsert batch is empty.
	ErrNoMembers = errors.New("no members to write")
)

// MemberRepo provides persistence for canonical audience members. All
// writes go through the composite-identity upsert; rows are never deleted.
type MemberRepo struct {
	DB *sql.DB
}

// NewMemberRepo constructs a MemberRepo.
func NewMemberRepo(db *sql.DB) *MemberRepo {
	return &MemberRepo{DB: db}
}

// CountExisting returns how many of the given composite identities already
// have rows. The zipped unnest keeps this a single round trip for an
// arbitrarily large identity list.
func (r *MemberRepo) CountExisting(ctx context.Context, identities []model.MemberIdentity) (int, error) {
	if r == nil || r.DB == nil {
		return 0, ErrMembersNotConfigured
	}
	if len(identities) == 0 {
		return 0, nil
	}

	kinds := make([]string, len(identities))
	sources := make([]string, len(identities))
	entityIDs := make([]string, len(identities))
	for i, id := range identities {
		kinds[i] = string(id.ProducerKind)
		sources[i] = id.SourceIdentifier
		entityIDs[i] = id.EntityID
	}

	const query = `
		SELECT count(*)
		FROM audience_members m
		JOIN unnest($1::text[], $2::text[], $3::text[])
		  AS k(producer_kind, source_identifier, entity_id)
		  ON m.producer_kind = k.producer_kind
		 AND m.source_identifier = k.source_identifier
		 AND m.entity_id = k.entity_id
	`

	var count int
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, query, kinds, sources, entityIDs).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count existing members: %w", apperrors.MapDBError(err))
	}
	return count, nil
}

// memberArrays holds column-oriented values for a batched upsert.
type memberArrays struct {
	ids         []string
	kinds       []string
	sources     []string
	entityIDs   []string
	entityTypes []string
	usernames   []*string
	displays    []*string
	profileURLs []*string
	verified    []bool
	premium     []bool
	bot         []bool
	suspicious  []bool
	active      []bool
	rawPayloads []string
}

func buildMemberArrays(members []*model.AudienceMember) *memberArrays {
	a := &memberArrays{
		ids:         make([]string, len(members)),
		kinds:       make([]string, len(members)),
		sources:     make([]string, len(members)),
		entityIDs:   make([]string, len(members)),
		entityTypes: make([]string, len(members)),
		usernames:   make([]*string, len(members)),
		displays:    make([]*string, len(members)),
		profileURLs: make([]*string, len(members)),
		verified:    make([]bool, len(members)),
		premium:     make([]bool, len(members)),
		bot:         make([]bool, len(members)),
		suspicious:  make([]bool, len(members)),
		active:      make([]bool, len(members)),
		rawPayloads: make([]string, len(members)),
	}
	for i, m := range members {
		a.ids[i] = uuid.NewString()
		a.kinds[i] = string(m.ProducerKind)
		a.sources[i] = m.SourceIdentifier
		a.entityIDs[i] = m.EntityID
		a.entityTypes[i] = m.EntityType
		a.usernames[i] = m.Username
		a.displays[i] = m.DisplayName
		a.profileURLs[i] = m.ProfileURL
		a.verified[i] = m.Verified
		a.premium[i] = m.Premium
		a.bot[i] = m.Bot
		a.suspicious[i] = m.Suspicious
		a.active[i] = m.Active
		payload := `{}`
		if len(m.RawPayload) > 0 {
			payload = string(m.RawPayload)
		}
		a.rawPayloads[i] = payload
	}
	return a
}

// SQL used by UpsertBatch. The conflict target is the composite identity;
// on conflict the row is refreshed with the latest flags and raw payload
// rather than left stale. The generated id only applies to fresh rows.
const upsertMembersSQL = `
	INSERT INTO audience_members (
	  id, producer_kind, source_identifier, entity_id, entity_type,
	  username, display_name, profile_url,
	  verified, premium, bot, suspicious, active,
	  raw_payload, created_at, updated_at
	)
	SELECT
	  unnest($1::text[]),
	  unnest($2::text[]),
	  unnest($3::text[]),
	  unnest($4::text[]),
	  unnest($5::text[]),
	  unnest($6::text[]),
	  unnest($7::text[]),
	  unnest($8::text[]),
	  unnest($9::bool[]),
	  unnest($10::bool[]),
	  unnest($11::bool[]),
	  unnest($12::bool[]),
	  unnest($13::bool[]),
	  unnest($14::text[])::jsonb,
	  now(),
	  now()
	ON CONFLICT (producer_kind, source_identifier, entity_id) DO UPDATE SET
	  entity_type = EXCLUDED.entity_type,
	  username = EXCLUDED.username,
	  display_name = EXCLUDED.display_name,
	  profile_url = EXCLUDED.profile_url,
	  verified = EXCLUDED.verified,
	  premium = EXCLUDED.premium,
	  bot = EXCLUDED.bot,
	  suspicious = EXCLUDED.suspicious,
	  active = EXCLUDED.active,
	  raw_payload = EXCLUDED.raw_payload,
	  updated_at = now()
`

// UpsertBatch writes one batch of members and returns the number of rows
// written (inserted or refreshed).
func (r *MemberRepo) UpsertBatch(ctx context.Context, params core.UpsertMembersParams) (int, error) {
	if r == nil || r.DB == nil {
		return 0, ErrMembersNotConfigured
	}
	if len(params.Members) == 0 {
		return 0, ErrNoMembers
	}
	for _, m := range params.Members {
		if err := m.Validate(); err != nil {
			return 0, fmt.Errorf("invalid member: %w", err)
		}
	}

	a := buildMemberArrays(params.Members)

	var written int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, upsertMembersSQL,
			a.ids, a.kinds, a.sources, a.entityIDs, a.entityTypes,
			a.usernames, a.displays, a.profileURLs,
			a.verified, a.premium, a.bot, a.suspicious, a.active,
			a.rawPayloads,
		)
		if execErr != nil {
			return execErr
		}
		written = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert members: %w", apperrors.MapDBError(err))
	}
	return int(written), nil
}

// CountBySource returns how many members are recorded for one scrape source.
func (r *MemberRepo) CountBySource(
	ctx context.Context,
	kind model.ProducerKind,
	sourceIdentifier string,
) (int, error) {
	if r == nil || r.DB == nil {
		return 0, ErrMembersNotConfigured
	}

	var count int
	err := r.DB.QueryRowContext(ctx, `
		SELECT count(*)
		FROM audience_members
		WHERE producer_kind = $1 AND source_identifier = $2
	`, string(kind), sourceIdentifier).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members by source: %w", apperrors.MapDBError(err))
	}
	return count, nil
}
