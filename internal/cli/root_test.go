package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		stdout, _, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Equal(t, "skillhost version "+GetVersion()+"\n", stdout)
	})

	t.Run("global flags default empty", func(t *testing.T) {
		for _, name := range []string{"config", "log-level"} {
			flag := GetRootCmd().PersistentFlags().Lookup(name)
			require.NotNil(t, flag, name)
			assert.Empty(t, flag.DefValue, name)
		}
	})

	t.Run("command surface", func(t *testing.T) {
		for _, path := range [][]string{
			{"skills", "list"},
			{"skills", "order"},
			{"skills", "exec"},
			{"bus", "topics"},
			{"run"},
			{"status"},
			{"stop"},
			{"configure"},
		} {
			cmd, rest, err := GetRootCmd().Find(path)
			require.NoError(t, err, strings.Join(path, " "))
			assert.Empty(t, rest)
			assert.Equal(t, path[len(path)-1], cmd.Name())
		}
	})

	t.Run("stop help mentions timeout", func(t *testing.T) {
		stdout, _, err := execute(t, "stop", "--help")
		require.NoError(t, err)
		assert.Contains(t, stdout, "SIGTERM")
		assert.Contains(t, stdout, "--timeout")
	})
}

func TestGetVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(GetVersion(), "0."))
}
