package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testTable() Table {
	return Table{
		Name:            "daily_impressions",
		PartitionColumn: "date",
		Columns:         []string{"date", "title", "total_impressions"},
	}
}

func TestDistinctPartitions(t *testing.T) {
	rows := []Row{
		{"date": "2024-01-06"},
		{"date": "2024-01-05"},
		{"date": "2024-01-05"},
		{"date": ""},
		{"title": "no partition value"},
	}

	got := DistinctPartitions(testTable(), rows)
	require.Equal(t, []string{"2024-01-05", "2024-01-06"}, got)
}

func TestDistinctPartitionsEmpty(t *testing.T) {
	require.Empty(t, DistinctPartitions(testTable(), nil))
}

func TestDeleteStatement(t *testing.T) {
	got := deleteStatement(testTable())
	require.Equal(t, `DELETE FROM "daily_impressions" WHERE "date" = ANY($1)`, got)
}

func TestInsertStatement(t *testing.T) {
	got := insertStatement(testTable())
	require.Equal(t, `INSERT INTO "daily_impressions" ("date", "title", "total_impressions") VALUES ($1, $2, $3)`, got)
}
