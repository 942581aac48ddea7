package source

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		ref  string
		kind Kind
	}{
		{"./local/recipe.yml", KindLocal},
		{"/abs/path/recipe.yml", KindLocal},
		{"file:./recipe.yml", KindLocal},
		{"https://example.com/pack.tar.gz", KindHTTP},
		{"git+https://example.com/repo.git", KindGit},
		{"github.com/acme/widgets.git", KindGit},
		{"acme/widgets", KindGit},
		{"acme/widgets#main", KindGit},
		{"npm:left-pad", KindPackage},
		{"just-a-name", KindPackage},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			kind, err := Classify(tc.ref)
			require.NoError(t, err)
			require.Equal(t, tc.kind, kind)
		})
	}
}

func TestClassifyRejectsShellMetacharacters(t *testing.T) {
	for _, ref := range []string{"repo; rm -rf /", "$(whoami)/x", "a|b", "a`b`"} {
		_, err := Classify(ref)
		require.Error(t, err)
	}
}

func TestCreatorIdentity(t *testing.T) {
	require.Equal(t, "acme", CreatorIdentity(KindGit, "acme/widgets"))
	require.Equal(t, "acme", CreatorIdentity(KindGit, "github.com/acme/widgets.git"))
	require.Equal(t, "example.com", CreatorIdentity(KindHTTP, "https://example.com/pack.tar.gz"))
}

func TestTrustStoreSetAndGet(t *testing.T) {
	dir := t.TempDir()
	store := NewTrustStore(filepath.Join(dir, "trust.json"))

	_, ok, err := store.Get("acme")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetLevel("acme", TrustTrusted))
	rec, ok, err := store.Get("acme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TrustTrusted, rec.Level)
}

func TestTrustStoreRejectsInvalidTransition(t *testing.T) {
	dir := t.TempDir()
	store := NewTrustStore(filepath.Join(dir, "trust.json"))

	require.NoError(t, store.SetLevel("acme", TrustBlocked))
	require.NoError(t, store.SetLevel("acme", TrustTrusted))
	require.NoError(t, store.SetLevel("acme", TrustBlocked))
	require.Error(t, store.SetLevel("acme", TrustPrompted))
}

func TestGateBlocksKnownBlockedCreator(t *testing.T) {
	dir := t.TempDir()
	store := NewTrustStore(filepath.Join(dir, "trust.json"))
	require.NoError(t, store.SetLevel("acme", TrustBlocked))

	err := Gate(store, "acme", false, nil)
	require.Error(t, err)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
}

func TestGateRejectsUnknownCreatorNonInteractively(t *testing.T) {
	dir := t.TempDir()
	store := NewTrustStore(filepath.Join(dir, "trust.json"))

	err := Gate(store, "stranger", false, nil)
	require.Error(t, err)
	var untrusted *UntrustedError
	require.ErrorAs(t, err, &untrusted)
}

type stubDecision struct{ level TrustLevel }

func (d stubDecision) Decide(creator string) (TrustLevel, error) { return d.level, nil }

func TestGatePromptsAndPersistsDecision(t *testing.T) {
	dir := t.TempDir()
	store := NewTrustStore(filepath.Join(dir, "trust.json"))

	err := Gate(store, "newcomer", true, stubDecision{level: TrustTrusted})
	require.NoError(t, err)

	rec, ok, err := store.Get("newcomer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TrustTrusted, rec.Level)
}
