package conference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEffectiveOrder_S6 mirrors TESTABLE PROPERTY S6: ten clients prefer
// [AV1, VP9, VP8], one prefers [VP9, AV1]. Rank-sum aggregation gives AV1 a
// sum of 1 (ranked first by all ten majority cohorts) against VP9's sum of
// 10, so AV1 leads; VP8 is dropped because the eleventh cohort never
// mentioned it.
func TestEffectiveOrder_S6(t *testing.T) {
	a := NewBordaAggregator()
	for i := 0; i < 10; i++ {
		a.SetCohortPreference(itoa(i), []CodecName{CodecAV1, CodecVP9, CodecVP8})
	}
	a.SetCohortPreference("outlier", []CodecName{CodecVP9, CodecAV1})

	got := a.EffectiveOrder()
	assert.Equal(t, []CodecName{CodecAV1, CodecVP9}, got)
}

func TestEffectiveOrder_EmptyWithNoCohorts(t *testing.T) {
	a := NewBordaAggregator()
	assert.Nil(t, a.EffectiveOrder())
}

func TestEffectiveOrder_TiebreaksLexicographically(t *testing.T) {
	a := NewBordaAggregator()
	a.SetCohortPreference("a", []CodecName{CodecVP8, CodecVP9})
	a.SetCohortPreference("b", []CodecName{CodecVP9, CodecVP8})

	got := a.EffectiveOrder()
	assert.Equal(t, []CodecName{CodecVP8, CodecVP9}, got)
}

func TestRemoveCohort_DropsItsContribution(t *testing.T) {
	a := NewBordaAggregator()
	a.SetCohortPreference("a", []CodecName{CodecVP8})
	a.SetCohortPreference("b", []CodecName{CodecVP9})
	assert.Empty(t, a.EffectiveOrder())

	a.RemoveCohort("b")
	a.SetCohortPreference("a", []CodecName{CodecVP8})
	assert.Equal(t, []CodecName{CodecVP8}, a.EffectiveOrder())
}
