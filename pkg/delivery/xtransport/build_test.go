package xtransport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/logship/pkg/config/xconf"
)

func TestBuild_FromYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlCfg := []byte(`
sinks:
  - kind: console
    name: stdout
  - kind: file
    name: audit
    path: ` + filepath.Join(dir, "audit.log") + `
    batch_size: 1
    rotation:
      max_bytes: 1048576
      interval: daily
      max_files: 3
      compress: true
    retry:
      max_retry: 2
      base_delay_ms: 1
`)
	cfg, err := xconf.LoadBytes(yamlCfg, xconf.FormatYAML)
	require.NoError(t, err)

	p, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, p.Transports(), 2)
	assert.Equal(t, "stdout", p.Transports()[0].Name())
	assert.Equal(t, "audit", p.Transports()[1].Name())

	p.Log(entry("configured"))
	require.NoError(t, p.Close(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "configured")
}

func TestBuild_OffloadedSink(t *testing.T) {
	t.Parallel()

	cfg := &xconf.Pipeline{Sinks: []xconf.Sink{
		{Kind: xconf.SinkConsole, Offload: true},
	}}

	p, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, p.Transports()[0].Offloaded())
	require.NoError(t, p.Close(context.Background()))
}

func TestBuild_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := Build(context.Background(), nil)
	assert.ErrorIs(t, err, xconf.ErrNoSinks)
}

func TestBuild_InvalidSink(t *testing.T) {
	t.Parallel()

	cfg := &xconf.Pipeline{Sinks: []xconf.Sink{
		{Kind: xconf.SinkFile}, // 缺 path
	}}
	_, err := Build(context.Background(), cfg)
	assert.ErrorIs(t, err, xconf.ErrMissingPath)
}

func TestBuildAuth_TaggedUnion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *xconf.Auth
		want any
	}{
		{"bearer", &xconf.Auth{Kind: xconf.AuthBearer, Token: "abc"}, &bearerAuth{}},
		{"basic", &xconf.Auth{Kind: xconf.AuthBasic, Username: "u", Password: "p"}, &basicAuth{}},
		{"header", &xconf.Auth{Kind: xconf.AuthHeader, Name: "X-Api-Key", Value: "v"}, &headerAuth{}},
		{"query", &xconf.Auth{Kind: xconf.AuthQuery, Name: "key", Value: "v"}, &queryAuth{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := buildAuth(tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}

	t.Run("nil 配置无认证", func(t *testing.T) {
		t.Parallel()
		got, err := buildAuth(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("未知 kind 报错", func(t *testing.T) {
		t.Parallel()
		_, err := buildAuth(&xconf.Auth{Kind: "oauth9"})
		assert.ErrorIs(t, err, xconf.ErrUnknownAuthKind)
	})
}
