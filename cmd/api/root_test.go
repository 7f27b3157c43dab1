package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/perception-api/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.Contains(t, names, "serve")
	require.Contains(t, names, "migrate")

	serveCmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NotNil(t, serveCmd.Flags().Lookup("migrate"))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger(config.Config{AppName: "test", LogLevel: "chatty"})
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = newLogger(config.Config{AppName: "test", LogLevel: "debug"})
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
