package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func legacyToken(t *testing.T, accountID, email string, exp time.Time) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"google_id": accountID,
		"email":     email,
		"exp":       exp.UnixMilli(),
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestMaker_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	maker := NewJWTMaker(testSecret, 24*time.Hour, WithClock(fixedClock(now)))

	tests := []struct {
		name      string
		accountID string
		email     string
	}{
		{name: "with email", accountID: "1098765", email: "user@domain.com"},
		{name: "without email", accountID: "acc-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiresAt, err := maker.GenerateToken(tt.accountID, tt.email)
			require.NoError(t, err)
			assert.NotEmpty(t, token)
			assert.Equal(t, now.Add(24*time.Hour), expiresAt)
			assert.Equal(t, SchemeSigned, Classify(token))

			session, err := maker.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.accountID, session.AccountID)
			assert.Equal(t, tt.email, session.Email)
			assert.Equal(t, SchemeSigned, session.Scheme)
			assert.True(t, session.IssuedAt.Equal(now))
			assert.True(t, session.ExpiresAt.Equal(expiresAt))
		})
	}
}

func TestMaker_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	maker := NewJWTMaker(testSecret, time.Hour, WithClock(func() time.Time { return clock }))

	token, expiresAt, err := maker.GenerateToken("acc-1", "a@b.c")
	require.NoError(t, err)

	clock = expiresAt.Add(time.Second)
	session, err := maker.ParseToken(token)
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestMaker_TamperedBytes(t *testing.T) {
	maker := NewJWTMaker(testSecret, time.Hour)
	token, _, err := maker.GenerateToken("acc-1", "a@b.c")
	require.NoError(t, err)

	for i := range len(token) {
		if token[i] == '.' {
			continue
		}
		idx := strings.IndexByte(base64URLAlphabet, token[i])
		require.GreaterOrEqual(t, idx, 0)
		// XOR со старшим битом гарантирует изменение декодированных байт.
		tampered := token[:i] + string(base64URLAlphabet[idx^32]) + token[i+1:]

		session, err := maker.ParseToken(tampered)
		assert.Nil(t, session, "position %d", i)
		assert.ErrorIs(t, err, ErrInvalidSignature, "position %d", i)
	}
}

func TestMaker_InvalidTokens(t *testing.T) {
	maker := NewJWTMaker(testSecret, 15*time.Minute)
	other := NewJWTMaker("wrong_secret_key", 15*time.Minute)

	foreign, _, err := other.GenerateToken("acc-1", "")
	require.NoError(t, err)
	valid, _, err := maker.GenerateToken("acc-1", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty token", token: "", wantErr: ErrNoValidCredential},
		{name: "garbage", token: "not a token at all", wantErr: ErrNoValidCredential},
		{name: "malformed jwt", token: "invalid.token.here", wantErr: ErrInvalidSignature},
		{name: "wrong secret key", token: foreign, wantErr: ErrInvalidSignature},
		{name: "appended bytes", token: valid + "tampered", wantErr: ErrInvalidSignature},
		{name: "base64 json without expiry", token: base64.StdEncoding.EncodeToString([]byte(`{"google_id":"1"}`)), wantErr: ErrNoValidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := maker.ParseToken(tt.token)
			assert.Nil(t, session)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMaker_RejectsOtherAlgorithms(t *testing.T) {
	maker := NewJWTMaker(testSecret, time.Hour)
	// alg "none" с пустой подписью не проходит классификацию как подписанный токен,
	// а с непустой подписью отклоняется списком разрешённых алгоритмов.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"account_id":"1","exp":4102444800}`))

	_, err := maker.ParseToken(header + "." + payload + ".sig")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMaker_Legacy(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	maker := NewJWTMaker(testSecret, time.Hour, WithClock(fixedClock(now)))

	t.Run("valid legacy token", func(t *testing.T) {
		token := legacyToken(t, "1098765", "old@domain.com", now.Add(time.Hour))
		assert.Equal(t, SchemeLegacy, Classify(token))

		session, err := maker.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, "1098765", session.AccountID)
		assert.Equal(t, "old@domain.com", session.Email)
		assert.Equal(t, SchemeLegacy, session.Scheme)
	})

	t.Run("unpadded legacy token", func(t *testing.T) {
		token := strings.TrimRight(legacyToken(t, "1", "", now.Add(time.Hour)), "=")
		session, err := maker.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, "1", session.AccountID)
	})

	t.Run("expired legacy token", func(t *testing.T) {
		token := legacyToken(t, "1098765", "", now.Add(-time.Millisecond))
		session, err := maker.ParseToken(token)
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("expiry equal to now is expired", func(t *testing.T) {
		token := legacyToken(t, "1098765", "", now)
		_, err := maker.ParseToken(token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("legacy disabled", func(t *testing.T) {
		strict := NewJWTMaker(testSecret, time.Hour, WithClock(fixedClock(now)), WithLegacy(false))
		token := legacyToken(t, "1098765", "", now.Add(time.Hour))
		session, err := strict.ParseToken(token)
		assert.Nil(t, session)
		assert.ErrorIs(t, err, ErrLegacyDisabled)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Scheme
	}{
		{name: "empty", raw: "", want: SchemeUnknown},
		{name: "three segments", raw: "a.b.c", want: SchemeSigned},
		{name: "empty segment", raw: "a..c", want: SchemeUnknown},
		{name: "two segments", raw: "a.b", want: SchemeUnknown},
		{name: "legacy", raw: base64.StdEncoding.EncodeToString([]byte(`{"google_id":"1","exp":1}`)), want: SchemeLegacy},
		{name: "base64 non-json", raw: base64.StdEncoding.EncodeToString([]byte("hello")), want: SchemeUnknown},
		{name: "base64 json missing id", raw: base64.StdEncoding.EncodeToString([]byte(`{"exp":1}`)), want: SchemeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw))
			assert.Equal(t, tt.want == SchemeLegacy, IsLegacy(tt.raw))
		})
	}
}
