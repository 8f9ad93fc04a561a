package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeWorkspace builds root/{alpha/{inner},beta,.hidden,node_modules}.
func makeWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"alpha/inner", "beta", ".hidden", "node_modules"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	return root
}

func TestListVisibleChildren(t *testing.T) {
	root := makeWorkspace(t)
	children := listVisibleChildren(root)
	require.Len(t, children, 2)
	assert.Equal(t, filepath.Join(root, "alpha"), children[0])
	assert.Equal(t, filepath.Join(root, "beta"), children[1])
}

func TestListVisibleChildren_MissingDir(t *testing.T) {
	assert.Empty(t, listVisibleChildren("/does/not/exist"))
}

func TestIsBranchDir(t *testing.T) {
	root := makeWorkspace(t)
	assert.True(t, isBranchDir(filepath.Join(root, "alpha")))
	assert.False(t, isBranchDir(filepath.Join(root, "beta")))
}

func TestIsGitRepo(t *testing.T) {
	root := makeWorkspace(t)
	assert.False(t, isGitRepo(root))
	require.NoError(t, os.Mkdir(filepath.Join(root, "beta", ".git"), 0o755))
	assert.True(t, isGitRepo(filepath.Join(root, "beta")))
}

func TestBrowseHeader(t *testing.T) {
	root := makeWorkspace(t)
	assert.Contains(t, browseHeader(root, root), "<code>/</code>")
	assert.Contains(t, browseHeader(filepath.Join(root, "alpha"), root), "<code>alpha/</code>")
}

func TestBrowserKeyboard(t *testing.T) {
	root := makeWorkspace(t)
	markup := browserKeyboard(root, root, false)
	require.NotEmpty(t, markup.InlineKeyboard)

	// At a single-root workspace root there is no up button.
	navRow := markup.InlineKeyboard[0]
	require.Len(t, navRow, 1)
	assert.Equal(t, "sel:.", navRow[0].CallbackData)

	// alpha has children so it navigates; beta is a leaf so it selects.
	var flat []string
	for _, row := range markup.InlineKeyboard[1:] {
		for _, btn := range row {
			flat = append(flat, btn.CallbackData)
		}
	}
	assert.Contains(t, flat, "nav:alpha")
	assert.Contains(t, flat, "sel:beta")
}

func TestBrowserKeyboard_NestedShowsUp(t *testing.T) {
	root := makeWorkspace(t)
	markup := browserKeyboard(filepath.Join(root, "alpha"), root, false)
	navRow := markup.InlineKeyboard[0]
	require.Len(t, navRow, 2)
	assert.Equal(t, "nav:..", navRow[1].CallbackData)
}

func TestBrowserListing(t *testing.T) {
	root := makeWorkspace(t)
	listing := browserListing(root, root)
	assert.Contains(t, listing, "alpha/")
	assert.Contains(t, listing, "▶")
	assert.Contains(t, listing, "beta/")

	empty := browserListing(filepath.Join(root, "beta"), root)
	assert.Contains(t, empty, "No subdirectories")
}

func TestResolveBrowsePath(t *testing.T) {
	root := makeWorkspace(t)
	other := t.TempDir()
	roots := []string{other, root}

	path, foundRoot, ok := resolveBrowsePath("alpha/inner", roots)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "alpha", "inner"), path)
	assert.Equal(t, root, foundRoot)

	_, _, ok = resolveBrowsePath("missing", roots)
	assert.False(t, ok)

	// Escapes are rejected even when the target exists.
	_, _, ok = resolveBrowsePath("../beta", []string{filepath.Join(root, "alpha")})
	assert.False(t, ok)
}

func TestIsUnderDir(t *testing.T) {
	assert.True(t, isUnderDir("/w/proj", "/w"))
	assert.True(t, isUnderDir("/w", "/w"))
	assert.False(t, isUnderDir("/tmp", "/w"))
	assert.False(t, isUnderDir("/w/../tmp", "/w"))
}
