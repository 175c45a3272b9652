package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/LetterDesk/internal/models"
)

func TestDefaultCatalogOrder(t *testing.T) {
	c := Default()
	list := c.List()
	require.Len(t, list, 6)
	ids := make([]string, 0, len(list))
	for _, tpl := range list {
		ids = append(ids, tpl.ID)
	}
	assert.Equal(t, []string{"resignation", "bank", "police", "college", "apology", "leave"}, ids)

	leave, ok := c.Get("leave")
	require.True(t, ok)
	assert.Equal(t, models.DocLeaveLetter, leave.Type)
	assert.Equal(t, "Leave Application", leave.Title)

	_, ok = c.Get("unknown")
	assert.False(t, ok)
}

func TestListReturnsCopy(t *testing.T) {
	c := Default()
	list := c.List()
	list[0].Title = "changed"
	assert.Equal(t, "Professional Resignation", c.List()[0].Title)
}

func TestNormalizeDropsUnknownAndFillsOptional(t *testing.T) {
	tpl, _ := Default().Get("apology")
	got := tpl.Normalize(map[string]string{
		"name":    "Ravi",
		"manager": "Ops lead",
		"mistake": "missed a deadline",
		"extra":   "ignored",
	})
	assert.Equal(t, map[string]string{
		"name":    "Ravi",
		"manager": "Ops lead",
		"mistake": "missed a deadline",
		"action":  "",
	}, got)
}

func TestValidate(t *testing.T) {
	tpl, _ := Default().Get("college")

	err := tpl.Validate(map[string]string{"name": "Meera", "course": "BSc 12", "previousCollege": "St. Xavier's"})
	assert.NoError(t, err)

	err = tpl.Validate(map[string]string{"name": "Meera", "course": "  "})
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "course, previousCollege")
}

func TestValidateFieldLength(t *testing.T) {
	tpl, _ := Default().Get("college")
	values := map[string]string{"name": "Meera", "course": "BSc", "previousCollege": "St. Xavier's"}

	values["course"] = strings.Repeat("é", MaxFieldLength)
	assert.NoError(t, tpl.Validate(values), "the limit counts characters, not bytes")

	values["course"] = strings.Repeat("a", MaxFieldLength+1)
	err := tpl.Validate(values)
	require.ErrorIs(t, err, ErrFieldTooLong)
	assert.Contains(t, err.Error(), "course")
}
