package feed

import (
	"testing"

	"VitalWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want models.FeedEvent
	}{
		{
			name: "reading",
			line: "12,98.5,HeartRate,1700000000000",
			want: models.FeedEvent{SubjectID: 12, Label: "HeartRate", Value: 98.5, Timestamp: 1700000000000},
		},
		{
			name: "percent suffix and spaces",
			line: " 3, 96%, Saturation ,1700000000001\n",
			want: models.FeedEvent{SubjectID: 3, Label: "Saturation", Value: 96, Timestamp: 1700000000001},
		},
		{
			name: "extra fields ignored",
			line: "4,120,Systolic,10,120,80",
			want: models.FeedEvent{SubjectID: 4, Label: "Systolic", Value: 120, Timestamp: 10},
		},
		{
			name: "alert triggered",
			line: "7,triggered,Alert,55",
			want: models.FeedEvent{SubjectID: 7, Label: "Alert", AlertState: models.AlertTriggered, Timestamp: 55},
		},
		{
			name: "alert resolved",
			line: "7,RESOLVED,Alert,56",
			want: models.FeedEvent{SubjectID: 7, Label: "Alert", AlertState: models.AlertResolved, Timestamp: 56},
		},
		{
			name: "unknown label kept raw",
			line: "1,37.2,Temperature,5",
			want: models.FeedEvent{SubjectID: 1, Label: "Temperature", Value: 37.2, Timestamp: 5},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLine(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLine_Malformed(t *testing.T) {
	for _, line := range []string{
		"",
		"1,2,3",
		"x,1,HeartRate,5",
		"1,abc,HeartRate,5",
		"1,80,HeartRate,later",
		"1,80,,5",
		"1,maybe,Alert,5",
	} {
		_, err := ParseLine(line)
		assert.ErrorIs(t, err, ErrMalformedLine, "line %q", line)
	}
}
