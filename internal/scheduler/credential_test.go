package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizgen/quizgen-api/internal/config"
)

func testCredential(name, key string) Credential {
	return Credential{
		Name:     name,
		Key:      key,
		Endpoint: "https://llm.example.com/v1/chat/completions",
		Model:    "test-model",
	}
}

func TestCredentialPool_RoundRobinFairness(t *testing.T) {
	t.Parallel()

	pool := NewCredentialPool([]Credential{
		testCredential("a", "ka"),
		testCredential("off-1", ""),
		testCredential("b", "kb"),
		testCredential("c", "kc"),
		testCredential("off-2", "  "),
	})

	const selections = 31
	counts := map[string]int{}
	for i := 0; i < selections; i++ {
		cred, _, ok := pool.Next(nil)
		require.True(t, ok)
		counts[cred.Name]++
	}

	require.Len(t, counts, 3, "only usable credentials are selected")
	for name, n := range counts {
		assert.GreaterOrEqual(t, n, selections/3, "credential %s selected too rarely", name)
	}
}

func TestCredentialPool_SkipsDisabledCredential(t *testing.T) {
	t.Parallel()

	pool := NewCredentialPool([]Credential{
		testCredential("disabled", ""),
		testCredential("active", "key"),
	})

	for i := 0; i < 10; i++ {
		cred, idx, ok := pool.Next(nil)
		require.True(t, ok)
		assert.Equal(t, "active", cred.Name)
		assert.Equal(t, 1, idx)
	}
}

func TestCredentialPool_NoUsableCredential(t *testing.T) {
	t.Parallel()

	_, idx, ok := NewCredentialPool(nil).Next(nil)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)

	_, _, ok = NewCredentialPool([]Credential{testCredential("off", "")}).Next(nil)
	assert.False(t, ok)
}

func TestCredentialPool_Preferred(t *testing.T) {
	t.Parallel()

	pool := NewCredentialPool([]Credential{
		testCredential("a", "ka"),
		testCredential("b", "kb"),
		testCredential("off", ""),
	})

	one := 1
	for i := 0; i < 3; i++ {
		cred, idx, ok := pool.Next(&one)
		require.True(t, ok)
		assert.Equal(t, "b", cred.Name)
		assert.Equal(t, 1, idx)
	}

	disabled := 2
	cred, _, ok := pool.Next(&disabled)
	require.True(t, ok)
	assert.Equal(t, "a", cred.Name, "unusable preference falls back to round robin")

	outOfRange := 7
	cred, _, ok = pool.Next(&outOfRange)
	require.True(t, ok)
	assert.Equal(t, "b", cred.Name)
}

func TestCredentialPool_Mutations(t *testing.T) {
	t.Parallel()

	pool := NewCredentialPool([]Credential{testCredential("a", "ka")})

	idx, err := pool.Add(testCredential("b", "kb"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, pool.Len())

	added, ok := pool.Get(1)
	require.True(t, ok)
	assert.Equal(t, ProviderOpenAI, added.Provider, "provider defaults to openai")

	_, err = pool.Add(Credential{Name: "broken"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	update := testCredential("b2", "")
	update.MaxTokens = 2048
	require.NoError(t, pool.Update(1, update))
	got, _ := pool.Get(1)
	assert.Equal(t, "b2", got.Name)
	assert.Equal(t, "kb", got.Key, "empty key keeps the stored one")
	assert.Equal(t, 2048, got.MaxTokens)

	assert.ErrorIs(t, pool.Update(5, testCredential("x", "k")), ErrCredentialNotFound)

	pool.Reset()
	require.Equal(t, 1, pool.Len())
	first, _ := pool.Get(0)
	assert.Equal(t, "a", first.Name)

	_, ok = pool.Get(-1)
	assert.False(t, ok)
}

func TestCredential_Validate(t *testing.T) {
	t.Parallel()

	gemini := Credential{Name: "g", Key: "k", Model: "gemini-2.0-flash", Provider: ProviderGemini}
	assert.NoError(t, gemini.Validate(), "gemini credentials need no endpoint")

	openai := normalize(Credential{Name: "o", Model: "m"})
	assert.ErrorIs(t, openai.Validate(), ErrInvalidCredential)

	unknown := testCredential("u", "k")
	unknown.Provider = "cohere"
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidCredential)

	negative := normalize(testCredential("n", "k"))
	negative.MaxTokens = -1
	assert.ErrorIs(t, negative.Validate(), ErrInvalidCredential)
}

func TestCredential_Masked(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", testCredential("a", "").Masked().Key)
	assert.Equal(t, "****", testCredential("a", "short").Masked().Key)
	assert.Equal(t, "****cdef", testCredential("a", "sk-1234567890abcdef").Masked().Key)
}

func TestCredentialsFromConfig(t *testing.T) {
	t.Parallel()

	creds := CredentialsFromConfig([]config.CredentialConfig{
		{Name: "one", APIKey: "k1", Endpoint: "https://x/v1/chat/completions", Model: "m", MaxTokens: 10},
		{Name: "two", APIKey: "k2", Model: "gemini", Provider: "gemini"},
	})

	require.Len(t, creds, 2)
	assert.Equal(t, ProviderOpenAI, creds[0].Provider)
	assert.Equal(t, "k1", creds[0].Key)
	assert.Equal(t, 10, creds[0].MaxTokens)
	assert.Equal(t, ProviderGemini, creds[1].Provider)
}
