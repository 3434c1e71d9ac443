package server

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var info = &grpc.UnaryServerInfo{FullMethod: "/matchmaking.v1.MatchService/RecordAction"}

func TestUnaryLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	intercept := UnaryLogger(log)

	resp, err := intercept(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "code=OK")

	buf.Reset()
	_, err = intercept(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "card missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	_, _ = intercept(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "store down")
	})
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "method=/matchmaking.v1.MatchService/RecordAction")
}

func TestUnaryRecover(t *testing.T) {
	var buf bytes.Buffer
	intercept := UnaryRecover(slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := intercept(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, buf.String(), "grpc handler panic")
}
