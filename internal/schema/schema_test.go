package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
	"smfdb/internal/coltype"
	"smfdb/internal/keys"
)

func TestAddLinkColumnSynthesizesBacklink(t *testing.T) {
	db := NewDatabase()
	a, err := db.AddTable("A")
	require.NoError(t, err)
	b, err := db.AddTable("B")
	require.NoError(t, err)

	link, err := a.AddLinkColumn("b_ref", b, keys.AttrNullable)
	require.NoError(t, err)

	back := b.ColumnByKey(link.OriginCol)
	require.NotNil(t, back)
	require.Equal(t, coltype.BackLink, back.Kind)
	require.Equal(t, a.Key, back.LinkedTo)
}

func TestRemoveLinkColumnRemovesBacklink(t *testing.T) {
	db := NewDatabase()
	a, _ := db.AddTable("A")
	b, _ := db.AddTable("B")
	link, err := a.AddLinkColumn("b_ref", b, keys.AttrNullable)
	require.NoError(t, err)
	backKey := link.OriginCol

	require.NoError(t, a.RemoveColumn(db, "b_ref", true))
	require.Nil(t, b.ColumnByKey(backKey))
}

func TestDuplicateColumnNameIsSuffixed(t *testing.T) {
	db := NewDatabase()
	a, _ := db.AddTable("A")
	_, err := a.AddColumn("name", coltype.String, keys.AttrNone)
	require.NoError(t, err)
	c2, err := a.AddColumn("name", coltype.String, keys.AttrNone)
	require.NoError(t, err)
	require.Equal(t, "name_1", c2.Name)
}

func TestColKeyStableAcrossRenameButNotReuseAfterRemove(t *testing.T) {
	db := NewDatabase()
	a, _ := db.AddTable("A")
	c1, _ := a.AddColumn("x", coltype.Int, keys.AttrNone)
	key1 := c1.Key
	require.NoError(t, a.RenameColumn("x", "y"))
	require.Equal(t, key1, a.FindColumn("y").Key)

	require.NoError(t, a.RemoveColumn(db, "y", true))
	c2, _ := a.AddColumn("y", coltype.Int, keys.AttrNone)
	require.NotEqual(t, key1, c2.Key, "re-added column must get a distinguishable key")
}

func TestPrimaryKeyRejectsWrongKind(t *testing.T) {
	db := NewDatabase()
	a, _ := db.AddTable("A")
	_, _ = a.AddColumn("f", coltype.Float, keys.AttrNone)
	require.Error(t, a.SetPrimaryKey("f"))
}

func TestRemoveColumnRejectsPrimaryKeyWhileNonEmpty(t *testing.T) {
	db := NewDatabase()
	a, _ := db.AddTable("A")
	_, _ = a.AddColumn("id", coltype.Int, keys.AttrNone)
	require.NoError(t, a.SetPrimaryKey("id"))

	require.Error(t, a.RemoveColumn(db, "id", false))
	require.NotNil(t, a.FindColumn("id"), "column must survive a rejected removal")
}

func TestRemoveColumnAllowsPrimaryKeyWhileEmpty(t *testing.T) {
	db := NewDatabase()
	a, _ := db.AddTable("A")
	_, _ = a.AddColumn("id", coltype.Int, keys.AttrNone)
	require.NoError(t, a.SetPrimaryKey("id"))

	require.NoError(t, a.RemoveColumn(db, "id", true))
	require.Nil(t, a.FindColumn("id"))
	require.Nil(t, a.PrimaryKey, "removing the designated PK column must clear the designation")
}

func TestMigrationStateMachine(t *testing.T) {
	db := NewDatabase()
	require.Equal(t, Unversioned, db.MigrationState())

	db.Declare()
	require.Equal(t, Ready, db.MigrationState())
	db.Declare() // idempotent once past Unversioned
	require.Equal(t, Ready, db.MigrationState())

	require.NoError(t, db.RequireUpgrade())
	require.Equal(t, NeedUpgrade, db.MigrationState())

	require.Error(t, db.FinishUpgrade(), "cannot finish an upgrade that never began")

	require.NoError(t, db.BeginUpgrade())
	require.Equal(t, Upgrading, db.MigrationState())
	require.Error(t, db.BeginUpgrade(), "cannot begin an upgrade that is already in progress")

	require.NoError(t, db.FinishUpgrade())
	require.Equal(t, Ready, db.MigrationState())
}
