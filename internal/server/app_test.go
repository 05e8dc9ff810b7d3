package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/config"
)

func TestBuild_WiresApplication(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Convert.ScratchRoot = t.TempDir()

	app, err := Build(context.Background(), &cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, app.apiServer)
	require.NotNil(t, app.apiServer.Handler())
	require.NoError(t, app.Close())
}
