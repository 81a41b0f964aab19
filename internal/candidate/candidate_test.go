package candidate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://WWW.Example.com/path", "example.com"},
		{"example.com", "example.com"},
		{"http://example.co.th/", "example.co.th"},
		{"  shop.example.com  ", "shop.example.com"},
		{"www.example.com/a/b?c=1", "example.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.raw), "raw=%q", tt.raw)
	}
}

func TestSafeSlug(t *testing.T) {
	assert.Equal(t, "example.com", SafeSlug("example.com"))
	assert.Equal(t, "a_b_c.th", SafeSlug("a/b :c.th"))
	assert.Equal(t, "_", SafeSlug("ไทย"))
}

func TestParse(t *testing.T) {
	in := "domain,stratum,source,source_rank\n" +
		"https://WWW.One.com/x,A,list,1\n" +
		"two.co.th,B,,\n" +
		",A,list,3\n" +
		"three.com,,list,4\n"
	rows, dropped, err := parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Domain: "one.com", Raw: "https://WWW.One.com/x", Stratum: "A", Source: "list", SourceRank: "1"}, rows[0])
	assert.Equal(t, Row{Domain: "two.co.th", Raw: "two.co.th", Stratum: "B"}, rows[1])
}

func TestParseHeaderBOM(t *testing.T) {
	in := "\uFEFFdomain,stratum\nexample.com,A\n"
	rows, dropped, err := parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, rows, 1)
	assert.Equal(t, "example.com", rows[0].Domain)
}

func TestParseMissingColumns(t *testing.T) {
	_, _, err := parse(strings.NewReader("host,stratum\na.com,A\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")

	_, _, err = parse(strings.NewReader("domain\na.com\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stratum")
}
