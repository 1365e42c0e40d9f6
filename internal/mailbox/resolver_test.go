package mailbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(p, 0o755))
	}
}

func TestResolverDiscoverKeepsConfiguredOrder(t *testing.T) {
	root := t.TempDir()
	idA, idB, idC := "AAAA", "BBBB", "CCCC"
	mkdirs(t,
		filepath.Join(root, idA, "MQL5"),
		filepath.Join(root, idB),
		filepath.Join(root, idC, "MQL5"),
	)

	r := NewResolver(ResolverConfig{
		UserRoot:        root,
		InstallationIDs: []string{idC, idB, idA},
	})

	assert.Equal(t, []string{
		filepath.Join(root, idC),
		filepath.Join(root, idA),
	}, r.Discover())
}

func TestResolverDiscoverFallsBackToCommon(t *testing.T) {
	r := NewResolver(ResolverConfig{
		UserRoot:        filepath.Join(t.TempDir(), "missing"),
		InstallationIDs: DefaultInstallationIDs,
	})
	assert.Equal(t, []string{CommonSentinel}, r.Discover())

	var nilResolver *Resolver
	assert.Equal(t, []string{CommonSentinel}, nilResolver.Discover())
}

func TestResolverFilesDir(t *testing.T) {
	r := NewResolver(ResolverConfig{CommonRoot: "/data/Common"})
	assert.Equal(t, filepath.Join("/data/Common", "Files"), r.FilesDir(CommonSentinel))
	assert.Equal(t, filepath.Join("/x/ID", "MQL5", "Files"), r.FilesDir("/x/ID"))

	noCommon := NewResolver(ResolverConfig{})
	assert.Empty(t, noCommon.FilesDir(CommonSentinel))
}

func TestResolverMailboxDirsOrder(t *testing.T) {
	root := t.TempDir()
	common := t.TempDir()
	id := DefaultInstallationIDs[0]
	mkdirs(t,
		filepath.Join(root, id, "MQL5"),
		filepath.Join(root, "OTHER"),
	)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	r := NewResolver(ResolverConfig{
		UserRoot:        root,
		CommonRoot:      common,
		InstallationIDs: []string{id},
	})
	primary := r.Discover()[0]

	assert.Equal(t, []string{
		filepath.Join(root, id, "MQL5", "Files"),
		filepath.Join(common, "Files"),
		filepath.Join(root, "OTHER", "MQL5", "Files"),
	}, r.MailboxDirs(primary))
}

func TestResolverMailboxDirsCommonPrimary(t *testing.T) {
	common := t.TempDir()
	r := NewResolver(ResolverConfig{CommonRoot: common})

	assert.Equal(t, []string{filepath.Join(common, "Files")}, r.MailboxDirs(CommonSentinel))
	assert.Empty(t, NewResolver(ResolverConfig{}).MailboxDirs(CommonSentinel))
}
