package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
	"github.com/audiencelab/scrapewatch/internal/testutil"
)

// fakeScanner feeds canned column values into scanRunFromRow the way a
// pgx row would.
type fakeScanner struct {
	values []any
	err    error
}

func (f *fakeScanner) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		if i >= len(f.values) || f.values[i] == nil {
			continue
		}
		switch target := d.(type) {
		case *string:
			*target = f.values[i].(string)
		case *int:
			*target = f.values[i].(int)
		case *int64:
			*target = f.values[i].(int64)
		case *model.ProducerKind:
			*target = f.values[i].(model.ProducerKind)
		case *model.RunStatus:
			*target = f.values[i].(model.RunStatus)
		case *sql.NullString:
			*target = f.values[i].(sql.NullString)
		case *sql.NullTime:
			*target = f.values[i].(sql.NullTime)
		case *[]byte:
			*target = f.values[i].([]byte)
		case *time.Time:
			*target = f.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanRunFromRow(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(5 * time.Minute)
	created := started.Add(-time.Hour)

	scanner := &fakeScanner{values: []any{
		"run-1",
		"ext-abc",
		model.ProducerTelegram,
		model.RunStatusSucceeded,
		42,
		int64(300000),
		sql.NullString{String: "ds-ref", Valid: true},
		[]byte(`{"target": "https://t.me/example_group"}`),
		sql.NullString{},
		2,
		sql.NullTime{Time: started, Valid: true},
		sql.NullTime{Time: finished, Valid: true},
		created,
		finished,
	}}

	run, err := scanRunFromRow(scanner)
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "ext-abc", run.ExternalJobID)
	assert.Equal(t, model.ProducerTelegram, run.ProducerKind)
	assert.Equal(t, model.RunStatusSucceeded, run.Status)
	assert.Equal(t, 42, run.ItemsCount)
	assert.Equal(t, int64(300000), run.DurationMs)
	require.NotNil(t, run.DatasetRef)
	assert.Equal(t, "ds-ref", *run.DatasetRef)
	assert.Nil(t, run.ErrorMessage)
	assert.Equal(t, 2, run.ResurrectCount)
	require.NotNil(t, run.StartedAt)
	assert.True(t, run.StartedAt.Equal(started))
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(finished))
	assert.JSONEq(t, `{"target": "https://t.me/example_group"}`, string(run.InputConfig))
}

func TestScanRunFromRowError(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("column mismatch")}

	run, err := scanRunFromRow(scanner)
	assert.Error(t, err)
	assert.Nil(t, run)
}

func TestCloneJSON(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{}`), cloneJSON(nil))
	assert.Equal(t, json.RawMessage(`{}`), cloneJSON([]byte{}))

	raw := []byte(`{"a": 1}`)
	cloned := cloneJSON(raw)
	assert.Equal(t, json.RawMessage(raw), cloned)

	// Mutating the source must not leak into the clone.
	raw[2] = 'b'
	assert.Equal(t, json.RawMessage(`{"a": 1}`), cloned)
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, cloneNullableString(sql.NullString{}))
	s := cloneNullableString(sql.NullString{String: "x", Valid: true})
	require.NotNil(t, s)
	assert.Equal(t, "x", *s)

	assert.Nil(t, cloneNullableTime(sql.NullTime{}))
	loc := time.FixedZone("UTC+2", 2*3600)
	local := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)
	ts := cloneNullableTime(sql.NullTime{Time: local, Valid: true})
	require.NotNil(t, ts)
	assert.Equal(t, time.UTC, ts.Location())
	assert.True(t, ts.Equal(local))

	assert.False(t, nullableString(nil).Valid)
	v := "ref"
	assert.Equal(t, sql.NullString{String: "ref", Valid: true}, nullableString(&v))

	assert.False(t, nullableTime(nil).Valid)
	nt := nullableTime(&local)
	assert.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())
}

func TestBuildMemberArrays(t *testing.T) {
	members := []*model.AudienceMember{
		testutil.NewMember().WithEntityID("1001").WithUsername("alice").Build(),
		testutil.NewMember().WithEntityID("1002").Build(),
	}
	members[0].RawPayload = json.RawMessage(`{"id": 1001}`)
	members[1].Username = nil
	members[1].RawPayload = nil

	a := buildMemberArrays(members)

	require.Len(t, a.ids, 2)
	assert.NotEqual(t, a.ids[0], a.ids[1])
	assert.Equal(t, []string{"1001", "1002"}, a.entityIDs)
	require.NotNil(t, a.usernames[0])
	assert.Equal(t, "alice", *a.usernames[0])
	assert.Nil(t, a.usernames[1])
	assert.Equal(t, `{"id": 1001}`, a.rawPayloads[0])
	assert.Equal(t, `{}`, a.rawPayloads[1])
}

func TestRunRepoUpdateStatusRejectsInvalidStatus(t *testing.T) {
	repo := NewRunRepo(nil, RunRepoConfig{})

	changed, err := repo.UpdateStatus(context.Background(), "run-1", model.RunStatusUpdate{
		Status: model.RunStatus("exploded"),
	})
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Contains(t, err.Error(), "invalid run status")
}

func TestMemberRepoNotConfigured(t *testing.T) {
	repo := NewMemberRepo(nil)

	_, err := repo.CountExisting(context.Background(), []model.MemberIdentity{
		{ProducerKind: model.ProducerTelegram, SourceIdentifier: "s", EntityID: "1"},
	})
	assert.ErrorIs(t, err, ErrMembersNotConfigured)

	_, err = repo.UpsertBatch(context.Background(), core.UpsertMembersParams{
		Members: []*model.AudienceMember{testutil.NewMember().Build()},
	})
	assert.ErrorIs(t, err, ErrMembersNotConfigured)

	_, err = repo.CountBySource(context.Background(), model.ProducerTelegram, "s")
	assert.ErrorIs(t, err, ErrMembersNotConfigured)
}

func TestFixedTimeProvider(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tp := NewFixedTimeProvider(base)

	assert.True(t, tp.Now().Equal(base))

	tp.AddTime(90 * time.Second)
	assert.True(t, tp.Now().Equal(base.Add(90*time.Second)))

	later := base.Add(time.Hour)
	tp.SetTime(later)
	assert.True(t, tp.Now().Equal(later))
}
