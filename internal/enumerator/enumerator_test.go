package enumerator

import (
	"testing"

	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommit() *model.CommitNode {
	cfg := config.RepoConfig{URL: "h/r", Branches: []string{"main"}, BuildDepth: 1}
	repo := model.NewRepoNode(cfg, "/tmp/r", "git+https://h/r", &config.Settings{})
	commit, _ := repo.GetOrCreate("abc", func() *model.CommitNode {
		return model.NewCommitNode(repo, "abc", "msg", 1, "git+https://h/r?rev=abc")
	})
	return commit
}

func TestDerivationClassification(t *testing.T) {
	commit := testCommit()
	manifest := []byte(`{"packages": {"x86_64-linux": {"hello": {"description":"d","name":"hello","type":"derivation"}}}}`)

	targets, err := Enumerate(manifest, commit)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	snap := targets[0].Snapshot()
	assert.Equal(t, model.TargetDerivation, snap.Kind)
	assert.Equal(t, "packages.x86_64-linux.hello", snap.Path)
	assert.Equal(t, "x86_64-linux", snap.Arch)
	assert.Equal(t, "git+https://h/r?rev=abc#packages.x86_64-linux.hello", snap.FlakeURL)
}

func TestSystemConfigRewrite(t *testing.T) {
	commit := testCommit()
	manifest := []byte(`{"nixosConfigurations":{"host":{"type":"nixos-configuration"}}}`)

	targets, err := Enumerate(manifest, commit)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	snap := targets[0].Snapshot()
	assert.Equal(t, model.TargetSystemConfig, snap.Kind)
	assert.Equal(t, "nixosConfigurations.host.config.system.build.toplevel", snap.Path)
}

func TestUnknownArchDerivation(t *testing.T) {
	commit := testCommit()
	manifest := []byte(`{"packages": {"wasm32-linux": {"hello": {"description":"d","name":"hello","type":"derivation"}}}}`)

	targets, err := Enumerate(manifest, commit)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "unknown", targets[0].Snapshot().Arch)
}

func TestEmptyManifestYieldsNoTargets(t *testing.T) {
	commit := testCommit()
	targets, err := Enumerate([]byte(`{}`), commit)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestNonObjectChildrenAreIgnored(t *testing.T) {
	commit := testCommit()
	manifest := []byte(`{"packages": ["a", "b"], "scalar": 1, "nested": {"real": {"description":"d","name":"n","type":"derivation"}}}`)

	targets, err := Enumerate(manifest, commit)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "nested.real", targets[0].Snapshot().Path)
}

func TestDerivationTakesPrecedenceOverSystemConfig(t *testing.T) {
	commit := testCommit()
	manifest := []byte(`{"nixosConfigurations":{"host":{"description":"d","name":"host","type":"nixos-configuration"}}}`)

	targets, err := Enumerate(manifest, commit)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, model.TargetDerivation, targets[0].Snapshot().Kind)
}

func TestDeterministicOrderMatchesManifestKeyOrder(t *testing.T) {
	commit := testCommit()
	manifest := []byte(`{"packages": {"x86_64-linux": {
		"zebra": {"description":"d","name":"zebra","type":"derivation"},
		"alpha": {"description":"d","name":"alpha","type":"derivation"}
	}}}`)

	targets, err := Enumerate(manifest, commit)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "packages.x86_64-linux.zebra", targets[0].Snapshot().Path)
	assert.Equal(t, "packages.x86_64-linux.alpha", targets[1].Snapshot().Path)
}

func TestRootNotObjectIsError(t *testing.T) {
	commit := testCommit()
	_, err := Enumerate([]byte(`[]`), commit)
	assert.Error(t, err)
}
