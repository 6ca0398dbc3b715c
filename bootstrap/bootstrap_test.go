package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

const artifactWithoutToken = `runtime:
  port: 3500
database:
  uri: mongodb://localhost:27017
  name: perch
archiver:
  retry_attempts: 3
  custom_setting: keep me
`

func writeArtifactFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func parseArtifactFile(t *testing.T, path string) map[string]map[string]interface{} {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]map[string]interface{}{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func TestProvisionValidation(t *testing.T) {
	ctx := context.Background()

	_, err := Provision(ctx, Options{SkipRestart: true})
	assert.Error(t, err)

	_, err = Provision(ctx, Options{Path: "/nonexistent/config.yml", SkipRestart: true})
	require.Error(t, err)
	assert.True(t, IsArtifactNotFound(err))
	assert.False(t, IsArtifactNotFound(nil))
}

func TestProvisionGeneratesToken(t *testing.T) {
	ctx := context.Background()
	path := writeArtifactFile(t, artifactWithoutToken)

	result, err := Provision(ctx, Options{Path: path, SkipRestart: true})
	require.NoError(t, err)
	assert.False(t, result.Preserved)
	assert.Len(t, result.Token, 2*tokenByteLength)

	doc := parseArtifactFile(t, path)
	assert.Equal(t, result.Token, doc["runtime"]["bearer_token"])
	assert.Equal(t, 3500, doc["runtime"]["port"])
	assert.Equal(t, "perch", doc["database"]["name"])
	assert.Equal(t, "keep me", doc["archiver"]["custom_setting"],
		"sections the provisioner does not understand must survive")

	backup, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, artifactWithoutToken, string(backup))
}

func TestProvisionUsesSuppliedToken(t *testing.T) {
	ctx := context.Background()
	path := writeArtifactFile(t, artifactWithoutToken)

	result, err := Provision(ctx, Options{Path: path, Token: "operator-chosen", SkipRestart: true})
	require.NoError(t, err)
	assert.False(t, result.Preserved)
	assert.Equal(t, "operator-chosen", result.Token)

	doc := parseArtifactFile(t, path)
	assert.Equal(t, "operator-chosen", doc["runtime"]["bearer_token"])
}

func TestProvisionPreservesExistingToken(t *testing.T) {
	ctx := context.Background()
	path := writeArtifactFile(t, artifactWithoutToken)

	first, err := Provision(ctx, Options{Path: path, SkipRestart: true})
	require.NoError(t, err)

	committed, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := Provision(ctx, Options{Path: path, Token: "attempted-replacement", SkipRestart: true})
	require.NoError(t, err)
	assert.True(t, second.Preserved)
	assert.Equal(t, first.Token, second.Token)

	unchanged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(committed), string(unchanged),
		"reprovisioning must leave the artifact byte-for-byte unchanged")
}

func TestProvisionRejectsNonMappingRuntime(t *testing.T) {
	ctx := context.Background()
	content := "runtime: enabled\ndatabase:\n  name: perch\n"
	path := writeArtifactFile(t, content)

	_, err := Provision(ctx, Options{Path: path, SkipRestart: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")

	unchanged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(unchanged),
		"a malformed artifact must not be rewritten")
}

func TestProvisionPreservesNumericToken(t *testing.T) {
	ctx := context.Background()
	content := "runtime:\n  bearer_token: 12345\n"
	path := writeArtifactFile(t, content)

	result, err := Provision(ctx, Options{Path: path, SkipRestart: true})
	require.NoError(t, err)
	assert.True(t, result.Preserved)
	assert.Equal(t, "12345", result.Token)

	unchanged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(unchanged))
}

func TestProvisionCreatesRuntimeSection(t *testing.T) {
	ctx := context.Background()
	path := writeArtifactFile(t, "database:\n  name: perch\n")

	result, err := Provision(ctx, Options{Path: path, SkipRestart: true})
	require.NoError(t, err)

	doc := parseArtifactFile(t, path)
	assert.Equal(t, result.Token, doc["runtime"]["bearer_token"])
	assert.Equal(t, "perch", doc["database"]["name"])
}

func TestGenerateTokenEntropy(t *testing.T) {
	first, err := generateToken()
	require.NoError(t, err)
	second, err := generateToken()
	require.NoError(t, err)

	assert.Len(t, first, 2*tokenByteLength)
	assert.NotEqual(t, first, second)
}

func TestDetectAndSetToken(t *testing.T) {
	doc := yaml.MapSlice{}
	token, present, err := detectToken(doc)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.False(t, present)

	doc, err = setToken(doc, "abc")
	require.NoError(t, err)
	token, present, err = detectToken(doc)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.True(t, present)

	doc, err = setToken(doc, "def")
	require.NoError(t, err)
	token, _, err = detectToken(doc)
	require.NoError(t, err)
	assert.Equal(t, "def", token)
	require.Len(t, doc, 1, "setting a token twice must not duplicate the section")

	_, _, err = detectToken(yaml.MapSlice{{Key: "runtime", Value: "enabled"}})
	assert.Error(t, err)

	token, present, err = detectToken(yaml.MapSlice{
		{Key: "runtime", Value: yaml.MapSlice{{Key: "bearer_token", Value: 12345}}},
	})
	require.NoError(t, err)
	assert.True(t, present, "an unexpectedly typed token still counts as present")
	assert.Equal(t, "12345", token)

	_, present, err = detectToken(yaml.MapSlice{
		{Key: "runtime", Value: yaml.MapSlice{{Key: "bearer_token", Value: ""}}},
	})
	require.NoError(t, err)
	assert.False(t, present, "an empty token field means no credential yet")
}
