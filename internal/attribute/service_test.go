package attribute

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return NewService(s, nil)
}

func TestAppend_EncodesAndDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Append(ctx, model.EntityAttribute{
		Project:    "health-plans",
		EntityID:   " acme-health ",
		AttrSlug:   "regulated",
		Value:      "yes",
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-health", created.EntityID)
	assert.Equal(t, "1", created.Value)
	assert.Equal(t, model.AttributeSourceManual, created.Source)
	assert.False(t, created.CapturedAt.IsZero())
}

func TestAppend_UnknownSlugStoresText(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Append(context.Background(), model.EntityAttribute{
		Project:  "health-plans",
		EntityID: "acme-health",
		AttrSlug: "broker_notes",
		Value:    "prefers quarterly reviews",
		Source:   "import",
	})
	require.NoError(t, err)
	assert.Equal(t, "prefers quarterly reviews", created.Value)
	assert.Equal(t, "import", created.Source)
}

func TestAppend_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := map[string]model.EntityAttribute{
		"missing project":  {EntityID: "e1", AttrSlug: "features", Value: "x"},
		"missing entity":   {Project: "p", AttrSlug: "features", Value: "x"},
		"missing slug":     {Project: "p", EntityID: "e1", Value: "x"},
		"blank value":      {Project: "p", EntityID: "e1", AttrSlug: "features", Value: "   "},
		"bad confidence":   {Project: "p", EntityID: "e1", AttrSlug: "features", Value: "x", Confidence: 1.5},
		"unencodable bool": {Project: "p", EntityID: "e1", AttrSlug: "regulated", Value: "maybe"},
	}
	for name, attr := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Append(ctx, attr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
}

func TestHistory_FiltersAndOrders(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, v := range []string{"200", "250"} {
		_, err := svc.Append(ctx, model.EntityAttribute{
			Project:  "health-plans",
			EntityID: "acme-health",
			AttrSlug: "employee_count",
			Value:    v,
		})
		require.NoError(t, err)
	}
	_, err := svc.Append(ctx, model.EntityAttribute{
		Project:  "health-plans",
		EntityID: "acme-health",
		AttrSlug: "headquarters",
		Value:    "Leeds, UK",
	})
	require.NoError(t, err)

	all, err := svc.History(ctx, "acme-health", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	counts, err := svc.History(ctx, "acme-health", "employee_count")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	// Append-only history preserves both observations in capture order.
	assert.Equal(t, "200", counts[0].Value)
	assert.Equal(t, "250", counts[1].Value)

	_, err = svc.History(ctx, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
