package mongo

import (
	"DocRAG/backend/go/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions(t *testing.T) {
	opts := ClientOptions(config.MongoConfig{
		Address:     "mongodb://db:27017",
		Username:    "rag",
		Password:    "secret",
		AuthSource:  "admin",
		MaxPoolSize: 20,
	})

	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(20), *opts.MaxPoolSize)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 5*time.Second, *opts.ServerSelectionTimeout)
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "admin", opts.Auth.AuthSource)
	assert.Equal(t, []string{"db:27017"}, opts.Hosts)
}

func TestClientOptions_NoCredentials(t *testing.T) {
	opts := ClientOptions(config.MongoConfig{Address: "mongodb://localhost:27017"})
	assert.Nil(t, opts.Auth)
	assert.Nil(t, opts.MaxPoolSize)
}
