package ssh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

func TestBuildAuthMethods(t *testing.T) {
	tests := []struct {
		name    string
		target  model.SSHTarget
		wantLen int
		wantErr bool
	}{
		{
			name:    "password only",
			target:  model.SSHTarget{Password: "secret"},
			wantLen: 1,
		},
		{
			name:    "no credentials",
			target:  model.SSHTarget{},
			wantErr: true,
		},
		{
			name:    "unparseable key without password",
			target:  model.SSHTarget{PrivateKey: "not a key"},
			wantErr: true,
		},
		{
			name:    "unparseable key falls back to password",
			target:  model.SSHTarget{PrivateKey: "not a key", Password: "secret"},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			methods, err := buildAuthMethods(tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, methods, tt.wantLen)
		})
	}
}

func TestPoolGetValidatesTarget(t *testing.T) {
	pool := NewConnectionPool(PoolOptions{})
	defer pool.Dispose()

	_, err := pool.Get(context.Background(), model.SSHTarget{Host: "example.com"})
	require.Error(t, err)
}

func TestPoolDisposeIsIdempotent(t *testing.T) {
	pool := NewConnectionPool(PoolOptions{})
	pool.Dispose()
	pool.Dispose()
}
