package records

import (
	"errors"
	"strings"
	"testing"
	"time"

	"oblik/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePenaltiesCanonicalText(t *testing.T) {
	got := NormalizePenalties([]store.PenaltyDecision{
		{OfficerID: " o1 ", DecisionType: DecisionArticle19Part11, PenaltyType: "щось інше", PenaltyOther: "x"},
		{OfficerID: "o2", DecisionType: DecisionArticle19Part13, PenaltyType: ""},
		{OfficerID: "o3", PenaltyType: "сувора догана"},
		{OfficerID: "o4", DecisionType: DecisionArticle13, PenaltyType: PenaltyOtherOption, PenaltyOther: " пониження "},
	})
	require.Len(t, got, 4)
	assert.Equal(t, store.PenaltyDecision{OfficerID: "o1", DecisionType: DecisionArticle19Part11, PenaltyType: PenaltyTextPart11}, got[0])
	assert.Equal(t, store.PenaltyDecision{OfficerID: "o2", DecisionType: DecisionArticle19Part13, PenaltyType: PenaltyTextPart13}, got[1])
	assert.Equal(t, DecisionArticle13, got[2].DecisionType)
	assert.Equal(t, "сувора догана", got[2].PenaltyType)
	assert.Equal(t, "пониження", got[3].PenaltyOther)
}

func TestNormalizePenaltiesDropsIncomplete(t *testing.T) {
	got := NormalizePenalties([]store.PenaltyDecision{
		{OfficerID: "  ", DecisionType: DecisionArticle19Part11},
		{OfficerID: "o1", DecisionType: DecisionArticle13, PenaltyType: "  "},
		{OfficerID: "o2", DecisionType: DecisionArticle19Part13},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "o2", got[0].OfficerID)
}

func TestNormalizePenaltiesIdempotent(t *testing.T) {
	in := []store.PenaltyDecision{
		{OfficerID: " o1", DecisionType: "article_19_part_11", PenaltyType: "x"},
		{OfficerID: "o2", PenaltyType: PenaltyOtherOption, PenaltyOther: "інше "},
		{OfficerID: "o3", DecisionType: DecisionArticle19Part13, PenaltyOther: "ignored"},
	}
	once := NormalizePenalties(in)
	assert.Equal(t, once, NormalizePenalties(once))
}

func TestInferDecisionType(t *testing.T) {
	assert.Equal(t, DecisionArticle13, InferDecisionType("обмежитися", true))
	assert.Equal(t, DecisionArticle19Part13, InferDecisionType("Обмежитися раніше застосованим", false))
	assert.Equal(t, DecisionArticle19Part11, InferDecisionType("попереджено про необхідність дотримання", false))
	assert.Equal(t, DecisionArticle13, InferDecisionType("догана", false))
}

func TestPenaltiesFromLegacy(t *testing.T) {
	items := penaltiesFromRequest(nil, &LegacyPenalty{OfficerID: "o1", PenaltyType: "обмеженося раніше"})
	require.Len(t, items, 1)
	assert.Equal(t, DecisionArticle19Part13, items[0].DecisionType)

	explicit := []store.PenaltyDecision{{OfficerID: "o2", PenaltyType: "догана"}}
	assert.Equal(t, explicit, penaltiesFromRequest(explicit, &LegacyPenalty{OfficerID: "o1"}))
	assert.Empty(t, penaltiesFromRequest(nil, nil))
}

func TestValidatePenalties(t *testing.T) {
	base := func() penaltyRequest {
		return penaltyRequest{
			items: NormalizePenalties([]store.PenaltyDecision{
				{OfficerID: "o1", DecisionType: DecisionArticle13, PenaltyType: "сувора догана"},
				{OfficerID: "o2", DecisionType: DecisionArticle19Part11},
			}),
			conclusionDate: "2026-02-01",
			orderNumber:    "15-к",
			orderDate:      "03.02.2026",
		}
	}

	t.Run("article 13 requires order", func(t *testing.T) {
		out, err := validatePenalties(base())
		require.NoError(t, err)
		assert.True(t, out.ByArticle13)
		assert.Equal(t, "15-к", out.OrderNumber)
		require.NotNil(t, out.OrderDate)
		assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), *out.OrderDate)

		req := base()
		req.orderNumber = ""
		_, err = validatePenalties(req)
		assertRule(t, err, "penaltyOrderNumber", "required")

		req = base()
		req.orderDate = "not a date"
		_, err = validatePenalties(req)
		assertRule(t, err, "penaltyOrderDate", "format")
	})

	t.Run("article 19 only drops order", func(t *testing.T) {
		req := base()
		req.items = req.items[1:]
		out, err := validatePenalties(req)
		require.NoError(t, err)
		assert.False(t, out.ByArticle13)
		assert.Empty(t, out.OrderNumber)
		assert.Nil(t, out.OrderDate)
	})

	t.Run("duplicate officer", func(t *testing.T) {
		req := base()
		req.items = append(req.items, store.PenaltyDecision{OfficerID: "o1", DecisionType: DecisionArticle19Part13, PenaltyType: PenaltyTextPart13})
		_, err := validatePenalties(req)
		assertRule(t, err, "penaltyItems", "duplicate_officer")
	})

	t.Run("selected officer without penalty", func(t *testing.T) {
		req := base()
		req.selectedOfficers = []string{"o1", "o9"}
		_, err := validatePenalties(req)
		assertRule(t, err, "officerIds", "missing_penalty")
	})

	t.Run("other option needs text", func(t *testing.T) {
		req := base()
		req.items[0].PenaltyType = PenaltyOtherOption
		_, err := validatePenalties(req)
		assertRule(t, err, "penaltyItems.penaltyOther", "required")
	})

	t.Run("conclusion date", func(t *testing.T) {
		req := base()
		req.conclusionDate = ""
		_, err := validatePenalties(req)
		assertRule(t, err, "conclusionApprovedDate", "required")
		req.conclusionDate = "32.13.2026"
		_, err = validatePenalties(req)
		assertRule(t, err, "conclusionApprovedDate", "format")
	})

	t.Run("unknown decision type", func(t *testing.T) {
		req := base()
		req.items[1].DecisionType = "ARTICLE_99"
		_, err := validatePenalties(req)
		assertRule(t, err, "penaltyItems.decisionType", "unknown")
	})

	t.Run("empty list", func(t *testing.T) {
		req := base()
		req.items = nil
		_, err := validatePenalties(req)
		assertRule(t, err, "penaltyItems", "required")
	})
}

func TestBuildPenaltyNarrative(t *testing.T) {
	orderDate := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	outcome := &PenaltyOutcome{
		Items: []store.PenaltyDecision{
			{OfficerID: "o1", DecisionType: DecisionArticle13, PenaltyType: PenaltyOtherOption, PenaltyOther: "попередження про неповну службову відповідність"},
			{OfficerID: "o2", DecisionType: DecisionArticle19Part11, PenaltyType: PenaltyTextPart11},
		},
		ByArticle13:          true,
		ConclusionApprovedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		OrderNumber:          "15-к",
		OrderDate:            &orderDate,
	}
	officers := map[string]store.Officer{
		"o1": {ID: "o1", FirstName: "Тарас", LastName: "Шевченко", BadgeNumber: "0001"},
		"o2": {ID: "o2", FirstName: "Олена", LastName: "Коваленко"},
	}
	text := BuildPenaltyNarrative(outcome, officers)
	assert.Contains(t, text, "01.02.2026")
	assert.Contains(t, text, "Шевченко Тарас (0001) — попередження про неповну службову відповідність (ст. 13 Дисциплінарного статуту НПУ)")
	assert.Contains(t, text, "Коваленко Олена — "+PenaltyTextPart11+" (ч. 11 ст. 19 Дисциплінарного статуту НПУ)")
	assert.Contains(t, text, "Наказ № 15-к від 03.02.2026.")

	outcome.ByArticle13 = false
	outcome.OrderDate = nil
	text = BuildPenaltyNarrative(outcome, officers)
	assert.True(t, strings.HasSuffix(text, "Заходи застосовано без видання наказу."))
}

func assertRule(t *testing.T, err error, field, rule string) {
	t.Helper()
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	assert.Equal(t, field, ve.Field)
	assert.Equal(t, rule, ve.Rule)
	assert.ErrorIs(t, err, ErrValidation)
}
