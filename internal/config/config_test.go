package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/money"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "0.0.0.0:3000", cfg.WebBind)
	assert.Equal(t, "http://localhost:3000", cfg.WebUIBaseURL)
	assert.Equal(t, cfg.JWTSecret, cfg.ConfirmationSecret)
	assert.Equal(t, "warikan", cfg.MongoDatabase)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, money.JPY, cfg.Currency())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"DATABASE_URL":          "postgres://localhost/warikan",
		"DISCORD_REDIRECT_URI":  "https://warikan.example.com/api/auth/callback",
		"DISCORD_CLIENT_ID":     "id",
		"DISCORD_CLIENT_SECRET": "secret",
		"CONFIRMATION_SECRET":   "confirm",
		"KAFKA_BROKERS":         "k1:9092, k2:9092,,",
		"CURRENCY_EXPONENT":     "2",
		"CURRENCY_SYMBOL":       "USD",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "https://warikan.example.com", cfg.WebUIBaseURL)
	assert.Equal(t, "confirm", cfg.ConfirmationSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, money.Currency{Exponent: 2, Symbol: "USD"}, cfg.Currency())
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"mongo without uri", map[string]string{"STORE_DRIVER": "mongo"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"bad exponent", map[string]string{"CURRENCY_EXPONENT": "two"}},
		{"negative exponent", map[string]string{"CURRENCY_EXPONENT": "-1"}},
		{"half oauth", map[string]string{"DISCORD_CLIENT_ID": "id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestMongoDriver(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"STORE_DRIVER": "Mongo",
		"MONGO_URI":    "mongodb://localhost:27017",
	}))
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
}
