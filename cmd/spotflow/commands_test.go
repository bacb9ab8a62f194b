package api

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "spotflow")
}

func TestConfigValidateCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading:\n  pairs: [BTC/USDT]\n  paper: true\n"), 0644))

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"config", "validate", "--config", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "config ok: 1 pairs, paper=true")

	cmd = NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestPing_EmptyPort(t *testing.T) {
	assert.Error(t, Ping("", 1))
}

func TestSignalCmd_Validation(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading:\n  pairs: [BTC/USDT]\n"), 0644))

	run := func(args ...string) error {
		cmd := NewRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"signal", "--config", path}, args...))
		return cmd.Execute()
	}

	// 未配置 kafka
	err := run("BTCUSDT", "--action", "buy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka")

	// 缺少币对参数
	assert.Error(t, run("--action", "buy"))
}
