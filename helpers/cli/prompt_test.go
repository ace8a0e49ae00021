package cli

import (
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	t.Parallel()

	lines := []string{}
	ReadLines(strings.NewReader("units\n\n  # comment\n pay 1 100 \n"), func(line string) {
		lines = append(lines, line)
	})
	require.Equal(t, []string{"units", "pay 1 100"}, lines)
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	complete := Suggest([]prompt.Suggest{{Text: "pay"}, {Text: "plan"}, {Text: "units"}})
	buf := prompt.NewBuffer()
	buf.InsertText("p", false, true)
	got := complete(*buf.Document())
	require.Len(t, got, 2)

	buf.InsertText("ay 1", false, true)
	require.Nil(t, complete(*buf.Document()))
}
