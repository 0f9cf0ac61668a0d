package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("Civic#Voice9")
	require.NoError(t, err)
	assert.NotEqual(t, "Civic#Voice9", hash)

	assert.NoError(t, h.Compare(hash, "Civic#Voice9"))
	assert.ErrorIs(t, h.Compare(hash, "civic#voice9"), ErrMismatch)
}

func TestCompareNormalizesCompatibilityForms(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	// U+FB01 (fi ligature) folds to "fi" under NFKC.
	hash, err := h.Hash("Conﬁdential1!")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "Confidential1!"))
}

func TestCompareRejectsMalformedHash(t *testing.T) {
	err := NewHasher(bcrypt.MinCost).Compare("not-a-hash", "whatever")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).Cost)
	assert.Equal(t, 12, NewHasher(12).Cost)
}

func TestDefaultRules(t *testing.T) {
	cases := []struct {
		password   string
		violations int
	}{
		{"Civic#Voice9", 0},
		{"short1A!", 0},
		{"short", 4},
		{"alllowercase", 3},
		{"ALLUPPER123!", 1},
	}
	for _, tc := range cases {
		t.Run(tc.password, func(t *testing.T) {
			err := DefaultRules().Validate(tc.password)
			if tc.violations == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrWeakPassword)
			assert.Len(t, Violations(err), tc.violations)
		})
	}
}

func TestMaxBytesRule(t *testing.T) {
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, MaxBytes(72).Check(string(long)))
	assert.NoError(t, MaxBytes(72).Check(string(long[:72])))
}

func TestRulesCompose(t *testing.T) {
	rules := DefaultRules().With(NotContaining("jane.doe", "Jane"))
	err := rules.Validate("Jane#Doe2024")
	require.ErrorIs(t, err, ErrWeakPassword)
	assert.Equal(t, []string{"must not contain personal information"}, Violations(err))

	assert.Len(t, DefaultRules(), 6, "With must not mutate the receiver")
}

func TestRuleFunc(t *testing.T) {
	noSpaces := RuleFunc(func(pw string) error {
		for _, r := range pw {
			if r == ' ' {
				return assert.AnError
			}
		}
		return nil
	})
	assert.Error(t, Rules{noSpaces}.Validate("has space"))
	assert.NoError(t, Rules{noSpaces}.Validate("nospace"))
}
