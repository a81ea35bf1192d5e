package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Flying Monkeys Brewery Inc.", "flying monkeys brewery"},
		{"Flying  Monkeys   Brewery", "flying monkeys brewery"},
		{"JOE'S PIZZA, LLC", "joe s pizza"},
		{"Café München", "café münchen"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeName(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	require.Equal(t, NormalizeAddress("123 Main Street"), NormalizeAddress("123 Main St"))
	require.Equal(t, NormalizeAddress("45 Oak Avenue, Suite 2"), NormalizeAddress("45 Oak Ave Unit 2"))
	require.Equal(t, NormalizeAddress("107 Dunlop Street East"), NormalizeAddress("107 Dunlop St E"))
	require.Equal(t, NormalizeAddress("22 King St North West"), NormalizeAddress("22 King Street N W"))
	require.NotEqual(t, NormalizeAddress("123 Main St"), NormalizeAddress("124 Main St"))
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	require.Equal(t, "4165551234", NormalizePhone("+1 (416) 555-1234"))
	require.Equal(t, NormalizePhone("+1 (705) 721-8989"), NormalizePhone("705-721-8989"))
	require.Equal(t, NormalizePhone("416.555.1234"), NormalizePhone("(416) 555 1234"))
	require.Equal(t, "1234", NormalizePhone("1234"), "short numbers keep their digits")
	require.Equal(t, "", NormalizePhone("n/a"))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, similarity("flying monkeys", "flying monkeys"))
	require.Equal(t, 0.0, similarity("", "flying monkeys"))
	require.Greater(t, similarity("flying monkeys brewery", "flying monkey brewery"), 0.9)
	require.Less(t, similarity("pizza palace", "sushi garden"), 0.5)
}
