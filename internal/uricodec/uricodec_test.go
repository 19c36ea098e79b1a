package uricodec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abcXYZ019", "abcXYZ019"},
		{"unreserved marks", "a-b_c~d", "a-b_c~d"},
		{"space and newline", "a b\nc", "a%20b%0Ac"},
		{"sub delims", "!'()*.", "%21%27%28%29%2A%2E"},
		{"reserved", "?code=1&x=#", "%3Fcode%3D1%26x%3D%23"},
		{"plus", "1+1", "1%2B1"},
		{"utf8", "é", "%C3%A9"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in))
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	src := "from coloraide import Color\nColor('red').convert(\"oklch\") # 100%"
	got, err := Decode(Encode(src))
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestDecodeKeepsPlus(t *testing.T) {
	got, err := Decode("1+1")
	require.NoError(t, err)
	assert.Equal(t, "1+1", got)
}

func TestDecodeInvalid(t *testing.T) {
	for _, token := range []string{"%", "%zz", "abc%4", "%C3"} {
		_, err := Decode(token)
		assert.True(t, errors.Is(err, ErrInvalid), "token %q", token)
	}
}

func TestShareLink(t *testing.T) {
	link := ShareLink("https://example.com/", "/coloraide/", "playground", "Color('red')")
	assert.Equal(t, "https://example.com/coloraide/playground/?code=Color%28%27red%27%29", link)

	link = ShareLink("http://localhost:8080", "", "/playground/", "x")
	assert.Equal(t, "http://localhost:8080/playground/?code=x", link)
}

func TestQueryLink(t *testing.T) {
	assert.Equal(t, "/playground/?notebook=https%3A%2F%2Fa.io%2Fn.md",
		QueryLink("", "playground", "notebook", "https://a.io/n.md"))
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/", JoinPath("", "/"))
	assert.Equal(t, "/a/b/", JoinPath("/a/", "/b"))
	assert.Equal(t, "/a/b/c/", JoinPath("a/b", "c/"))
}

func TestCanonicalQuery(t *testing.T) {
	assert.Equal(t, CanonicalQuery("?b=2&a=1"), CanonicalQuery("a=1&b=2"))
	assert.Equal(t, CanonicalQuery("code=a%20b"), CanonicalQuery("?code=a+b"))
	assert.NotEqual(t, CanonicalQuery("code=x"), CanonicalQuery("code=y"))
	assert.Equal(t, "", CanonicalQuery("?"))
}
