package anonymiser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hellofresh/gdpr-dump/pkg/config"
)

func generate(t *testing.T, raw string, original interface{}) interface{} {
	t.Helper()

	tr, err := Create("users", "column", spec(raw))
	require.NoError(t, err)
	require.Equal(t, SyntheticValue, tr.Kind())

	value, err := tr.Value(original)
	require.NoError(t, err)

	return value
}

func TestFakeGenerators(t *testing.T) {
	t.Parallel()

	for name := range fakers {
		name := name
		t.Run(name, func(t *testing.T) {
			value := generate(t, `{"generator": "`+name+`"}`, []byte("sensitive"))
			assert.IsType(t, "", value)
			assert.NotEqual(t, "sensitive", value)

			assert.Nil(t, generate(t, `{"generator": "`+name+`"}`, nil), "NULL stays NULL")
		})
	}
}

func TestDifferentFrom(t *testing.T) {
	calls := 0
	g := differentFrom(func() string {
		calls++
		if calls < 3 {
			return "same"
		}
		return "other"
	})

	value, err := g("same")
	require.NoError(t, err)
	assert.Equal(t, "other", value)
	assert.Equal(t, 3, calls)

	_, err = differentFrom(func() string { return "same" })("same")
	require.Error(t, err)
}

func TestLiteralGenerator(t *testing.T) {
	assert.Equal(t, "redacted", generate(t, `{"generator": "literal", "params": {"value": "redacted"}}`, "secret"))
	assert.Equal(t, "redacted", generate(t, `{"generator": "literal", "params": {"value": "redacted"}}`, nil))
	assert.Equal(t, float64(0), generate(t, `{"generator": "literal", "params": {"value": 0}}`, int64(42)))
	assert.Nil(t, generate(t, `{"generator": "literal", "params": {"value": null}}`, "secret"))
}

func TestNullGenerator(t *testing.T) {
	assert.Nil(t, generate(t, `"generator:null"`, "secret"))
}

func TestUUIDGenerator(t *testing.T) {
	value := generate(t, `"generator:uuid"`, "secret")
	require.IsType(t, "", value)
	assert.Len(t, value, 36)
	assert.NotEqual(t, value, generate(t, `"generator:uuid"`, "secret"))
}

func TestSHA256Generator(t *testing.T) {
	sum := sha256.Sum256([]byte("pepperalice@example.com"))
	expected := hex.EncodeToString(sum[:])

	raw := `{"generator": "sha256", "params": {"salt": "pepper"}}`
	assert.Equal(t, expected, generate(t, raw, "alice@example.com"))
	assert.Equal(t, expected, generate(t, raw, []byte("alice@example.com")), "deterministic")
	assert.Nil(t, generate(t, raw, nil))
}

func TestMaskGenerator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scenario string
		maskType string
		value    string
		expected string
	}{
		{scenario: "when no type is given", value: "Alice", expected: "*****"},
		{scenario: "when the default mask counts runes", maskType: "default", value: "Zoë", expected: "***"},
		{scenario: "when a long email is masked", maskType: "email", value: "alice.smith@example.com", expected: "ali****ith@example.com"},
		{scenario: "when the email local part is short", maskType: "email", value: "al@example.com", expected: "**************"},
		{scenario: "when the email has no domain", maskType: "email", value: "Al", expected: "**"},
		{scenario: "when a long id is masked", maskType: "id", value: "A123456789012", expected: "A12345****012"},
		{scenario: "when the id is short", maskType: "id", value: "0612", expected: "****"},
		{scenario: "when the id ends at the window", maskType: "id", value: "A123456789", expected: "**********"},
		{scenario: "when a long credit card is masked", maskType: "credit_card", value: "4111111111111111", expected: "411111******1111"},
		{scenario: "when the credit card is short", maskType: "credit_card", value: "A12345", expected: "******"},
		{scenario: "when a long mobile is masked", maskType: "mobile", value: "0912345678", expected: "0912***678"},
		{scenario: "when the mobile is short", maskType: "mobile", value: "0612", expected: "****"},
		{scenario: "when the telephone has an unknown length", maskType: "tel", value: "12345", expected: "*****"},
		{scenario: "when the url has no credentials", maskType: "url", value: "https://example.com/alice", expected: "*************************"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.scenario, func(t *testing.T) {
			raw := `"generator:mask"`
			if test.maskType != "" {
				raw = `{"generator": "mask", "params": {"type": "` + test.maskType + `"}}`
			}

			masked := generate(t, raw, test.value)
			assert.Equal(t, test.expected, masked)
			assert.NotContains(t, masked, test.value)
		})
	}
}

func TestMaskGeneratorKeepsNull(t *testing.T) {
	assert.Nil(t, generate(t, `{"generator": "mask", "params": {"type": "id"}}`, nil))
}

func TestTemplateGenerator(t *testing.T) {
	raw := `{"generator": "template", "params": {"template": "{{ if .IsNull }}none{{ else }}{{ .Table }}.{{ .Column }}:{{ .Value | upper }}{{ end }}"}}`

	assert.Equal(t, "users.column:ALICE", generate(t, raw, []byte("alice")))
	assert.Equal(t, "none", generate(t, raw, nil))
}

func TestPasswordHashGenerator(t *testing.T) {
	raw := `{"generator": "password_hash", "params": {"password": "secret", "cost": 4}}`

	tr, err := Create("users", "password", spec(raw))
	require.NoError(t, err)

	first, err := tr.Value("old-hash")
	require.NoError(t, err)
	second, err := tr.Value("another-hash")
	require.NoError(t, err)

	assert.Equal(t, first, second, "the hash is computed once")
	require.IsType(t, "", first)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(first.(string)), []byte("secret")))

	value, err := tr.Value(nil)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestReplaceGenerator(t *testing.T) {
	raw := `{"generator": "replace", "params": {"before": "example.com", "after": "example.org"}}`

	assert.Equal(t, "alice@example.org", generate(t, raw, "alice@example.com"))
	assert.Equal(t, "alice@example.net", generate(t, raw, "alice@example.net"))
	assert.Nil(t, generate(t, raw, nil))
}

func TestReplaceGeneratorRequired(t *testing.T) {
	tr, err := Create("users", "email", spec(`{"generator": "replace", "params": {"before": "example.com", "after": "example.org", "required": true}}`))
	require.NoError(t, err)

	value, err := tr.Value("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", value)

	_, err = tr.Value("alice@example.net")
	assert.Error(t, err)

	value, err = tr.Value(nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = Create("users", "email", spec(`{"generator": "replace", "params": {"before": "a", "required": "yes"}}`))
	assert.True(t, config.IsGenerationError(err))
}

func TestGenerators(t *testing.T) {
	names := Generators()

	assert.Contains(t, names, "fake_name")
	assert.Contains(t, names, "template")
	for _, name := range names {
		assert.NotEmpty(t, Describe(name), name)
	}
	assert.True(t, strings.HasPrefix(Describe("fake_job_title"), "random job title"))
}
