package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	table := Table{Headers: []string{"student", "remaining"}}
	table.Append("Khan, Ayesha", "16000.00")
	table.Append("Bilal")

	out, err := CSV(table)
	require.NoError(t, err)
	assert.Equal(t, "student,remaining\n\"Khan, Ayesha\",16000.00\nBilal,\n", string(out))
}

func TestCSVRejectsBadShapes(t *testing.T) {
	_, err := CSV(Table{})
	assert.Error(t, err)

	table := Table{Headers: []string{"a"}}
	table.Append("1", "2")
	_, err = CSV(table)
	assert.Error(t, err)
}
