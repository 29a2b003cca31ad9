package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Next(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 14, 2, 30, 15, 0, time.UTC) // Tuesday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 3 * * *", time.Date(2025, 1, 14, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 1, 14, 2, 45, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)},
		{"30 2 * * 1-5", time.Date(2025, 1, 15, 2, 30, 0, 0, time.UTC)},
		{"0 0 * * 0,6", time.Date(2025, 1, 18, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			s, err := ParseCron(tt.expr)
			require.NoError(t, err)
			got, err := s.Next(base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCron_Invalid(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "x * * * *"} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
}

type fakeBlob struct {
	cutoffs []time.Time
	failOn  string
}

func (f *fakeBlob) call(kind string, before time.Time, n int64) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	if f.failOn == kind {
		return 0, errors.New("upload failed")
	}
	return n, nil
}

func (f *fakeBlob) ArchiveQuotes(_ context.Context, before time.Time) (int64, error) {
	return f.call("quotes", before, 100)
}

func (f *fakeBlob) ArchiveOpportunities(_ context.Context, before time.Time) (int64, error) {
	return f.call("opportunities", before, 10)
}

func (f *fakeBlob) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	return f.call("trades", before, 2)
}

func TestArchiver_RunUsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	blob := &fakeBlob{}
	a := NewArchiver(blob, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	rep, err := a.Run(context.Background())
	require.NoError(t, err)
	want := now.AddDate(0, 0, -30)
	assert.Equal(t, RunReport{Cutoff: want, Quotes: 100, Opportunities: 10, Trades: 2}, rep)
	for _, c := range blob.cutoffs {
		assert.Equal(t, want, c)
	}
}

func TestArchiver_RunContinuesPastFailure(t *testing.T) {
	t.Parallel()

	blob := &fakeBlob{failOn: "opportunities"}
	a := NewArchiver(blob, 7, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rep, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opportunities")
	assert.EqualValues(t, 100, rep.Quotes)
	assert.EqualValues(t, 2, rep.Trades)
	assert.Len(t, blob.cutoffs, 3)
}

func TestArchiver_RunCronRejectsBadExpression(t *testing.T) {
	t.Parallel()

	a := NewArchiver(&fakeBlob{}, 7, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, a.RunCron(context.Background(), "bad"))
}
