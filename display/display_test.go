package display

import (
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv("PAGESYNC_JSON", "")
	root := &cobra.Command{Use: "pagesync"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "status", Run: func(*cobra.Command, []string) {}}
	root.AddCommand(child)

	assert.False(t, ShouldOutputJSON(child))

	root.SetArgs([]string{"status", "--json"})
	assert.NoError(t, root.Execute())
	assert.True(t, ShouldOutputJSON(child))

	t.Setenv("PAGESYNC_JSON", "1")
	assert.True(t, ShouldOutputJSON(nil))
}

func TestState(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()
	assert.Equal(t, "≡ synced", State("synced"))
	assert.Equal(t, "⇅ conflict", State("conflict"))
	assert.Equal(t, "? weird", State("weird"))
}

func TestMarshalJSON_PrettyInTests(t *testing.T) {
	data, err := MarshalJSON(map[string]int{"a": 1})
	assert.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
