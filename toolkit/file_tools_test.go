package toolkit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fileContext builds a ctx rooted at a temp project dir.
func fileContext(t *testing.T) (context.Context, string) {
	t.Helper()
	root := t.TempDir()
	ctx := WithContext(context.Background(), &Context{Root: root})
	return ctx, root
}

func TestReadFileTool(t *testing.T) {
	ctx, root := fileContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))
	tool := NewReadFileTool()

	t.Run("whole file", func(t *testing.T) {
		result, err := tool.Call(ctx, &ReadFileInput{Path: "notes.txt"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, "alpha\nbeta\ngamma\n", result.Text())
	})

	t.Run("offset and limit add line numbers", func(t *testing.T) {
		result, err := tool.Call(ctx, &ReadFileInput{Path: "notes.txt", Offset: 2, Limit: 1})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Contains(t, result.Text(), "2\tbeta")
		require.NotContains(t, result.Text(), "alpha")
		require.NotContains(t, result.Text(), "gamma")
	})

	t.Run("missing file", func(t *testing.T) {
		result, err := tool.Call(ctx, &ReadFileInput{Path: "nope.txt"})
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Text(), "not found")
	})

	t.Run("escaping path rejected", func(t *testing.T) {
		result, err := tool.Call(ctx, &ReadFileInput{Path: "../outside.txt"})
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Text(), "escapes")
	})

	t.Run("directory rejected", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
		result, err := tool.Call(ctx, &ReadFileInput{Path: "sub"})
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Text(), "directory")
	})

	t.Run("binary file rejected", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0, 1, 2, 250}, 0o644))
		result, err := tool.Call(ctx, &ReadFileInput{Path: "blob.bin"})
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Text(), "binary")
	})
}

func TestWriteFileTool(t *testing.T) {
	ctx, root := fileContext(t)
	tool := NewWriteFileTool()

	t.Run("creates file and parents", func(t *testing.T) {
		result, err := tool.Call(ctx, &WriteFileInput{Path: "docs/out.md", Content: "hello\n"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Contains(t, result.Text(), "created docs/out.md")

		written, err := os.ReadFile(filepath.Join(root, "docs", "out.md"))
		require.NoError(t, err)
		require.Equal(t, "hello\n", string(written))
	})

	t.Run("overwrite reports a diff", func(t *testing.T) {
		result, err := tool.Call(ctx, &WriteFileInput{Path: "docs/out.md", Content: "goodbye\n"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Contains(t, result.Text(), "updated docs/out.md")
		require.Contains(t, result.Text(), "-hello")
		require.Contains(t, result.Text(), "+goodbye")
	})

	t.Run("escaping path rejected", func(t *testing.T) {
		result, err := tool.Call(ctx, &WriteFileInput{Path: "../evil.txt", Content: "x"})
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Text(), "escapes")
	})
}

func TestListDirectoryTool(t *testing.T) {
	ctx, root := fileContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	tool := NewListDirectoryTool()

	t.Run("sorted with directory suffix", func(t *testing.T) {
		result, err := tool.Call(ctx, &ListDirectoryInput{})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, "a.txt\nb.txt\nsub/", result.Text())
	})

	t.Run("missing directory", func(t *testing.T) {
		result, err := tool.Call(ctx, &ListDirectoryInput{Path: "ghost"})
		require.NoError(t, err)
		require.True(t, result.IsError)
		require.Contains(t, result.Text(), "not found")
	})

	t.Run("empty directory", func(t *testing.T) {
		result, err := tool.Call(ctx, &ListDirectoryInput{Path: "sub"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Contains(t, result.Text(), "empty")
	})
}

func TestGlobTool(t *testing.T) {
	ctx, root := fileContext(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "deep"), 0o755))
	for _, name := range []string{"main.go", "pkg/util.go", "pkg/deep/core.go", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte("x"), 0o644))
	}
	tool := NewGlobTool()

	t.Run("recursive pattern", func(t *testing.T) {
		result, err := tool.Call(ctx, &GlobInput{Pattern: "**/*.go"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Equal(t, []string{"main.go", "pkg/deep/core.go", "pkg/util.go"},
			strings.Split(result.Text(), "\n"))
	})

	t.Run("no matches", func(t *testing.T) {
		result, err := tool.Call(ctx, &GlobInput{Pattern: "**/*.rs"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Contains(t, result.Text(), "no files match")
	})

	t.Run("empty pattern", func(t *testing.T) {
		result, err := tool.Call(ctx, &GlobInput{Pattern: ""})
		require.NoError(t, err)
		require.True(t, result.IsError)
	})
}
