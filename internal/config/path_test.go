package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("REVFINDER_TEST_DIR", "/srv/data")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "tilde only", input: "~", want: home},
		{name: "tilde prefix", input: "~/db/learned.db", want: filepath.Join(home, "db/learned.db")},
		{name: "env var", input: "$REVFINDER_TEST_DIR/learned.db", want: "/srv/data/learned.db"},
		{name: "absolute", input: "/tmp/learned.db", want: "/tmp/learned.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.input))
		})
	}
}

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, ":memory:", DatabasePath(":memory:"))
	assert.Equal(t, "/tmp/x.db", DatabasePath("/tmp/x.db"))
	assert.Equal(t, ExpandPath(DefaultDatabasePath), DatabasePath(""))
}
