package operations

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestFlagGroups(t *testing.T) {
	assert := assert.New(t)

	flags := mergeFlags(baseFlags(), dbFlags(), serviceFlags())
	flagMap := map[string]cli.Flag{}
	for _, f := range flags {
		flagMap[f.GetName()] = f
	}

	expected := []string{"workers", "dbUri", "dbName", "port, p", "config", "token", "disableAuth"}
	for _, n := range expected {
		_, ok := flagMap[n]
		assert.True(ok, n)
	}
}

func newTestContext(t *testing.T, args []string, flags []cli.Flag) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))

	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestBeforeFuncs(t *testing.T) {
	pathFlags := []cli.Flag{cli.StringFlag{Name: pathFlagName}}

	t.Run("RequireStringFlag", func(t *testing.T) {
		c := newTestContext(t, []string{}, pathFlags)
		assert.Error(t, requireStringFlag(pathFlagName)(c))

		c = newTestContext(t, []string{"--path", "conf.yml"}, pathFlags)
		assert.NoError(t, requireStringFlag(pathFlagName)(c))
	})
	t.Run("SetFlagOrFirstPositional", func(t *testing.T) {
		c := newTestContext(t, []string{"conf.yml"}, pathFlags)
		require.NoError(t, setFlagOrFirstPositional(pathFlagName)(c))
		assert.Equal(t, "conf.yml", c.String(pathFlagName))

		c = newTestContext(t, []string{"--path", "explicit.yml", "positional.yml"}, pathFlags)
		require.NoError(t, setFlagOrFirstPositional(pathFlagName)(c))
		assert.Equal(t, "explicit.yml", c.String(pathFlagName))

		c = newTestContext(t, []string{}, pathFlags)
		assert.Error(t, setFlagOrFirstPositional(pathFlagName)(c))
	})
	t.Run("MergeBeforeFuncs", func(t *testing.T) {
		c := newTestContext(t, []string{}, pathFlags)
		merged := mergeBeforeFuncs(
			func(*cli.Context) error { return nil },
			requireStringFlag(pathFlagName),
		)
		assert.Error(t, merged(c))

		c = newTestContext(t, []string{"--path", "conf.yml"}, pathFlags)
		assert.NoError(t, merged(c))
	})
}
