package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type openConfig struct {
	flushSteps int
	ioName     string
	calls      []string
}

func withFlushSteps(n int) Option[*openConfig] {
	return New(func(c *openConfig) error {
		if n < 1 {
			return errors.New("flush steps must be positive")
		}
		c.flushSteps = n
		c.calls = append(c.calls, "flush")

		return nil
	})
}

func withIOName(name string) Option[*openConfig] {
	return NoError(func(c *openConfig) {
		c.ioName = name
		c.calls = append(c.calls, "name")
	})
}

func TestApply_InOrder(t *testing.T) {
	cfg := &openConfig{}

	err := Apply(cfg, withIOName("sim"), withFlushSteps(3))
	require.NoError(t, err)
	require.Equal(t, "sim", cfg.ioName)
	require.Equal(t, 3, cfg.flushSteps)
	require.Equal(t, []string{"name", "flush"}, cfg.calls)
}

func TestApply_StopsAtFirstError(t *testing.T) {
	cfg := &openConfig{}

	err := Apply(cfg, withIOName("first"), withFlushSteps(0), withIOName("never"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "flush steps must be positive")
	require.Contains(t, err.Error(), "option 1")
	require.Equal(t, "first", cfg.ioName)
}

func TestApply_SkipsNil(t *testing.T) {
	cfg := &openConfig{}

	require.NoError(t, Apply(cfg, nil, withIOName("x")))
	require.Equal(t, "x", cfg.ioName)
}

func TestApply_NoOptions(t *testing.T) {
	cfg := &openConfig{}
	require.NoError(t, Apply(cfg))
	require.Empty(t, cfg.calls)
}
