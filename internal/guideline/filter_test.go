package guideline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEligibilityPolicyIsPublic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		strict  bool
		lenient bool
	}{
		{"public", `{"isLoginOnly": false}`, true, true},
		{"public and not redirected", `{"isLoginOnly": false, "isRedirectedExternally": false}`, true, true},
		{"login only", `{"isLoginOnly": true}`, false, false},
		{"redirected", `{"isLoginOnly": false, "isRedirectedExternally": true}`, false, false},
		{"redirected flag mistyped", `{"isLoginOnly": false, "isRedirectedExternally": "false"}`, false, false},
		{"login flag as string", `{"isLoginOnly": "false"}`, false, false},
		{"login flag null", `{"isLoginOnly": null}`, false, false},
		{"missing login flag", `{"title": "x"}`, false, true},
		{"missing login flag but redirected", `{"isRedirectedExternally": true}`, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := decode(t, tc.raw)
			require.Equal(t, tc.strict, EligibilityPolicy{}.IsPublic(g), "strict")
			require.Equal(t, tc.lenient, EligibilityPolicy{MissingLoginFlagIsPublic: true}.IsPublic(g), "lenient")
		})
	}
}

func TestFilterPublicKeepsOrder(t *testing.T) {
	t.Parallel()

	items := []Guideline{
		decode(t, `{"title": "A", "isLoginOnly": false}`),
		decode(t, `{"title": "B", "isLoginOnly": true}`),
		decode(t, `{"title": "C", "isLoginOnly": false}`),
	}
	got := FilterPublic(items, EligibilityPolicy{})
	require.Len(t, got, 2)
	require.Equal(t, "A", got[0].Title())
	require.Equal(t, "C", got[1].Title())
}
