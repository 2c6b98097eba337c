package engine

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/config"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/internal/options"
)

// settings collects what the options of every engine constructor configure.
type settings struct {
	fs     vfs.FS
	comm   comm.Comm
	logger *zap.Logger
	ioName string
	params map[string]string
	config *config.Config
	now    func() time.Time
}

// Option configures an engine.
type Option = options.Option[*settings]

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		fs:     vfs.Default,
		logger: zap.NewNop(),
		now:    time.Now,
		params: make(map[string]string),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}
	if s.comm == nil {
		s.comm = comm.Self()
	}

	return s, nil
}

// WithFS sets the file system datasets live on. The default is the local file system.
func WithFS(fs vfs.FS) Option {
	return options.New(func(s *settings) error {
		if fs == nil {
			return errors.Wrap(errs.ErrInvalidArgument, "nil file system")
		}
		s.fs = fs

		return nil
	})
}

// WithComm sets the communicator of the writing ranks. The default is a single rank.
func WithComm(c comm.Comm) Option {
	return options.New(func(s *settings) error {
		if c == nil {
			return errors.Wrap(errs.ErrInvalidArgument, "nil communicator")
		}
		s.comm = c

		return nil
	})
}

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithIOName sets the IO name recorded in process groups and used to look up
// configuration. The default is the dataset's base name.
func WithIOName(name string) Option {
	return options.NoError(func(s *settings) {
		s.ioName = name
	})
}

// WithParameters sets engine parameters. Later options override earlier ones key by key,
// and explicit parameters override those from WithConfig.
func WithParameters(params map[string]string) Option {
	return options.NoError(func(s *settings) {
		for k, v := range params {
			s.params[k] = v
		}
	})
}

// WithConfig applies the parameters of the config entry matching the IO name.
func WithConfig(cfg *config.Config) Option {
	return options.NoError(func(s *settings) {
		s.config = cfg
	})
}

// WithClock sets the clock used for index row timestamps.
func WithClock(now func() time.Time) Option {
	return options.New(func(s *settings) error {
		if now == nil {
			return errors.Wrap(errs.ErrInvalidArgument, "nil clock")
		}
		s.now = now

		return nil
	})
}
