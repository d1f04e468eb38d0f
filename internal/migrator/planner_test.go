package migrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/relmigrate/internal/history"
)

func stepIDs(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Migration.ID)
	}
	return out
}

func rows(ids ...string) []history.Row {
	out := make([]history.Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, history.Row{MigrationID: id, ProductVersion: DefaultProductVersion})
	}
	return out
}

func TestPlanEmptyLedgerAppliesAll(t *testing.T) {
	plan, err := testRegistry(t, true).Plan(nil, "")
	require.NoError(t, err)
	assert.Equal(t, []string{idCreateT1, idRenameT1, idAddNote}, stepIDs(plan.Apply))
	assert.Empty(t, plan.Revert)
}

func TestPlanInitialDatabaseRevertsAll(t *testing.T) {
	plan, err := testRegistry(t, true).Plan(rows(idCreateT1, idRenameT1, idAddNote), InitialDatabase)
	require.NoError(t, err)
	assert.Empty(t, plan.Apply)
	require.Equal(t, []string{idAddNote, idRenameT1, idCreateT1}, stepIDs(plan.Revert))

	assert.Equal(t, idRenameT1, plan.Revert[0].Previous.ID)
	assert.Equal(t, idCreateT1, plan.Revert[1].Previous.ID)
	assert.Nil(t, plan.Revert[2].Previous)
}

func TestPlanToTarget(t *testing.T) {
	reg := testRegistry(t, true)

	plan, err := reg.Plan(nil, "RenameT1")
	require.NoError(t, err)
	assert.Equal(t, []string{idCreateT1, idRenameT1}, stepIDs(plan.Apply))
	assert.Empty(t, plan.Revert)

	plan, err = reg.Plan(rows(idCreateT1, idRenameT1, idAddNote), idCreateT1)
	require.NoError(t, err)
	assert.Empty(t, plan.Apply)
	assert.Equal(t, []string{idAddNote, idRenameT1}, stepIDs(plan.Revert))
}

func TestPlanRevertsBeforeApplying(t *testing.T) {
	// AddNote was applied out of order, RenameT1 never was.
	plan, err := testRegistry(t, true).Plan(rows(idCreateT1, idAddNote), "RenameT1")
	require.NoError(t, err)
	assert.Equal(t, []string{idAddNote}, stepIDs(plan.Revert))
	assert.Equal(t, []string{idRenameT1}, stepIDs(plan.Apply))
	// The nearest older applied migration supplies the model.
	assert.Equal(t, idCreateT1, plan.Revert[0].Previous.ID)
}

func TestPlanMatchesLedgerIgnoringCase(t *testing.T) {
	plan, err := testRegistry(t, true).Plan(rows("20240101000000_createt1", "99999999999999_Unknown"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{idRenameT1, idAddNote}, stepIDs(plan.Apply))
}

func TestPlanUpToDate(t *testing.T) {
	plan, err := testRegistry(t, false).Plan(rows(idCreateT1, idRenameT1), "")
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlanUnknownTarget(t *testing.T) {
	_, err := testRegistry(t, false).Plan(nil, "Nope")
	assert.ErrorIs(t, err, ErrMigrationNotFound)
}

func TestPlanRevertKeepsRecordedID(t *testing.T) {
	plan, err := testRegistry(t, false).Plan(rows("20240101000000_createt1", idRenameT1), InitialDatabase)
	require.NoError(t, err)
	require.Len(t, plan.Revert, 2)
	assert.Equal(t, idRenameT1, plan.Revert[0].RecordedID)
	assert.Equal(t, idCreateT1, plan.Revert[1].Migration.ID)
	assert.Equal(t, "20240101000000_createt1", plan.Revert[1].RecordedID)
}
