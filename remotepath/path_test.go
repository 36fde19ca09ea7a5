package remotepath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"//", ""},
		{"\\", ""},
		{".", ""},
		{"a", "a"},
		{"/a", "a"},
		{"//a//b/", "a/b"},
		{"\\photos\\2024\\img.jpg", "photos/2024/img.jpg"},
		{"a\\/b", "a/b"},
		{"a/./b", "a/b"},
		{"a/../b", "b"},
		{"a/..", ""},
		{"../x", "../x"},
		{"/../x", "../x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"", "/", "///", "\\\\server\\share", "/a/b/", "a\\b/c\\", "//x//y//",
		"./a", "a/./../b", "..\\..\\up", "/\\/mixed\\/seps/", "trailing/",
		"name with spaces/file.jpg",
	}

	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestRootJoining(t *testing.T) {
	tests := []struct {
		root     string
		sub      string
		wantFile string
		wantDir  string
	}{
		{"/", "a/b.jpg", "/a/b.jpg", "/a/b.jpg/"},
		{"/", "", "/", "/"},
		{"", "a", "/a", "/a/"},
		{"/photos/", "/2024/img.jpg", "/photos/2024/img.jpg", "/photos/2024/img.jpg/"},
		{"photos", "\\2024\\", "/photos/2024", "/photos/2024/"},
		{"/photos//web", "", "/photos/web", "/photos/web/"},
	}

	for _, tt := range tests {
		t.Run(tt.root+"|"+tt.sub, func(t *testing.T) {
			require.Equal(t, tt.wantFile, File(tt.root, tt.sub))
			require.Equal(t, tt.wantDir, Dir(tt.root, tt.sub))
		})
	}
}

func TestRootDetection(t *testing.T) {
	for _, sub := range []string{"", "/", "\\", ".", "//", "a/..", "./"} {
		require.True(t, IsRoot(sub), "sub %q", sub)
		require.False(t, EscapesRoot(sub), "sub %q", sub)
	}

	require.False(t, IsRoot("a"))
	require.True(t, EscapesRoot(".."))
	require.True(t, EscapesRoot("a/../../b"))
	require.False(t, EscapesRoot("..a"))
}

func TestParentBaseAncestors(t *testing.T) {
	require.Equal(t, "a/b", Parent("/a/b/c"))
	require.Equal(t, "", Parent("a"))
	require.Equal(t, "", Parent(""))
	require.Equal(t, "c.jpg", Base("a\\b\\c.jpg"))
	require.Equal(t, "a/b/c", Join("a/b", "c"))
	require.Equal(t, []string{"a/b/c", "a/b", "a"}, Ancestors("/a/b/c/"))
	require.Empty(t, Ancestors("/"))
}
