package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user1.db")
	s, err := store.Open(path, "user1", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, id, subject, snippet string) {
	t.Helper()
	require.NoError(t, s.UpsertEmailIndex(context.Background(), domain.EmailIndex{
		ID: id, UserID: "user1", Date: 1, Subject: subject, Snippet: snippet,
	}))
}

func TestSearch_FreeTextMatchesSubjectOrSnippet(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, "a", "Quarterly invoice due", "please pay promptly")
	seed(t, s, "b", "Team lunch", "invoice not mentioned here")
	seed(t, s, "c", "Newsletter", "nothing relevant")
	e := New(s, zerolog.Nop())

	res, err := e.Search(context.Background(), domain.SearchCriteria{UserID: "user1", Query: "invoice"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestSearch_ExactPhraseRequiresContiguousMatch(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, "a", "please review the attached contract", "")
	seed(t, s, "b", "the contract needs your review", "")
	e := New(s, zerolog.Nop())

	res, err := e.Search(context.Background(), domain.SearchCriteria{UserID: "user1", Query: `"review the attached"`})
	require.NoError(t, err)
	require.Len(t, res.Emails, 1)
	assert.Equal(t, "a", res.Emails[0].ID)
}

func TestSearch_DefaultLimitAppliesWhenUnset(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 60; i++ {
		seed(t, s, string(rune('a'+i%26))+string(rune('A'+i/26)), "subject", "")
	}
	e := New(s, zerolog.Nop())

	res, err := e.Search(context.Background(), domain.SearchCriteria{UserID: "user1"})
	require.NoError(t, err)
	assert.Len(t, res.Emails, DefaultLimit)
}

func TestBuildAdvancedQuery_EmptyCriteriaYieldsEmptyString(t *testing.T) {
	assert.Equal(t, "", BuildAdvancedQuery(domain.SearchCriteria{}))
}

func TestBuildAdvancedQuery_MapsEveryField(t *testing.T) {
	from, to := 2023, 2024
	sizeMin := int64(1000)
	hasAttachments := true
	criteria := domain.SearchCriteria{
		Query:          "budget",
		SenderLike:     "boss@example.com",
		YearFrom:       &from,
		YearTo:         &to,
		HasAttachments: &hasAttachments,
		Labels:         []string{"work"},
		SizeMin:        &sizeMin,
	}

	got := BuildAdvancedQuery(criteria)
	assert.Equal(t, `"budget" from:boss@example.com after:2023/1/1 before:2025/1/1 has:attachment label:work larger:1000`, got)
}

func TestSaveSearch_RoundTripsCriteria(t *testing.T) {
	s := openTestStore(t)
	e := New(s, zerolog.Nop())

	sv, err := e.SaveSearch(context.Background(), "user1", "important mail", domain.SearchCriteria{UserID: "user1", Category: "high"})
	require.NoError(t, err)

	list, err := e.ListSavedSearches(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sv.Name, list[0].Name)

	decoded, err := DecodeCriteria(list[0])
	require.NoError(t, err)
	assert.Equal(t, "high", decoded.Category)
}
