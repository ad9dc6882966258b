package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

func TestTransitionGuards(t *testing.T) {
	cases := []struct {
		status   models.EssayStatus
		open     bool
		grade    bool
		deliver  bool
		annotate bool
	}{
		{models.EssayStatusPending, true, false, false, false},
		{models.EssayStatusGrading, true, true, false, true},
		{models.EssayStatusGraded, false, false, true, true},
		{models.EssayStatusSent, false, false, true, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.open, canOpenCorrection(tc.status))
			assert.Equal(t, tc.grade, canSubmitGrade(tc.status))
			assert.Equal(t, tc.deliver, canDeliver(tc.status))
			assert.Equal(t, tc.annotate, canAnnotate(tc.status))
		})
	}
}

func TestRequireAnnotations(t *testing.T) {
	err := requireAnnotations(nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingAnnotations.Code, errorCode(err))
	assert.Contains(t, err.Error(), "justificativas")

	assert.NoError(t, requireAnnotations([]models.Highlight{{ID: "h-1"}}))
}
