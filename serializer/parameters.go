package serializer

import (
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/internal/pool"
	"github.com/arloliu/bp4/internal/profile"
)

// KeepAllSteps is the AppendAfterSteps default: an append keeps every existing step.
const KeepAllSteps = math.MaxInt

// Parameters are the engine parameters the serializer and writer act on.
type Parameters struct {
	// FlushStepsCount is the number of steps between physical flushes.
	FlushStepsCount int
	// CollectiveMetadata writes consolidated metadata after every flush instead of only at close.
	CollectiveMetadata bool
	// AsyncTasks opens data files in the background.
	AsyncTasks bool
	// NodeLocal makes every rank create the dataset directory itself.
	NodeLocal bool
	// AppendAfterSteps is the number of existing steps an append keeps. Negative values
	// count back from the end: -1 keeps all.
	AppendAfterSteps int
	// Threads bounds the parallel payload copies of PerformPuts.
	Threads int
	// NumAggregators is the number of data files; 0 writes one per rank.
	NumAggregators int
	// InitialBufferSize is the starting capacity of the data buffer.
	InitialBufferSize uint64
	// MaxBufferSize caps the data buffer; 0 means unbounded.
	MaxBufferSize uint64
	// BufferGrowthFactor is the geometric growth of the buffers.
	BufferGrowthFactor float64
	// StatsLevel 1 records min and max for numeric blocks.
	StatsLevel int
	// Profile enables timers and the profiling report.
	Profile bool
	// ProfileUnits is the unit timers are reported in.
	ProfileUnits profile.Units
	// StrictActiveFlag fails an append when the previous writer did not close the dataset.
	StrictActiveFlag bool
}

// DefaultParameters returns the parameters used for keys that are not set.
func DefaultParameters() Parameters {
	return Parameters{
		FlushStepsCount:    1,
		CollectiveMetadata: true,
		AppendAfterSteps:   KeepAllSteps,
		Threads:            1,
		InitialBufferSize:  pool.DefaultInitialBufferSize,
		BufferGrowthFactor: pool.DefaultGrowthFactor,
		StatsLevel:         1,
		ProfileUnits:       profile.Microseconds,
	}
}

type paramSetter func(p *Parameters, value string) error

var paramSetters = map[string]paramSetter{
	"flushstepscount": func(p *Parameters, v string) error {
		n, err := parseInt(v, 1)
		p.FlushStepsCount = n

		return err
	},
	"collectivemetadata": func(p *Parameters, v string) (err error) {
		p.CollectiveMetadata, err = parseBool(v)
		return err
	},
	"asynctasks": func(p *Parameters, v string) (err error) {
		p.AsyncTasks, err = parseBool(v)
		return err
	},
	"nodelocal": func(p *Parameters, v string) (err error) {
		p.NodeLocal, err = parseBool(v)
		return err
	},
	"appendaftersteps": func(p *Parameters, v string) error {
		n, err := parseInt(v, math.MinInt)
		p.AppendAfterSteps = n

		return err
	},
	"threads": func(p *Parameters, v string) error {
		n, err := parseInt(v, 1)
		p.Threads = n

		return err
	},
	"numaggregators": setAggregators,
	"substreams":     setAggregators,
	"initialbuffersize": func(p *Parameters, v string) error {
		n, err := parseSize(v)
		p.InitialBufferSize = n

		return err
	},
	"maxbuffersize": func(p *Parameters, v string) error {
		n, err := parseSize(v)
		p.MaxBufferSize = n

		return err
	},
	"buffergrowthfactor": func(p *Parameters, v string) error {
		f, err := cast.ToFloat64E(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		if f <= 1 {
			return errors.Newf("growth factor must be greater than 1, got %v", f)
		}
		p.BufferGrowthFactor = f

		return nil
	},
	"statslevel": func(p *Parameters, v string) error {
		n, err := parseInt(v, 0)
		if err != nil {
			return err
		}
		if n != 0 && n != 1 {
			return errors.Newf("stats level must be 0 or 1, got %d", n)
		}
		p.StatsLevel = n

		return nil
	},
	"profile": func(p *Parameters, v string) (err error) {
		p.Profile, err = parseBool(v)
		return err
	},
	"profileunits": func(p *Parameters, v string) (err error) {
		p.ProfileUnits, err = profile.ParseUnits(strings.TrimSpace(v))
		return err
	},
	"strictactiveflag": func(p *Parameters, v string) (err error) {
		p.StrictActiveFlag, err = parseBool(v)
		return err
	},
}

func setAggregators(p *Parameters, v string) error {
	n, err := parseInt(v, 0)
	p.NumAggregators = n

	return err
}

// ParseParameters applies params over the defaults. Keys are case-insensitive; unknown
// keys and malformed values fail with errs.ErrInvalidArgument.
func ParseParameters(params map[string]string) (Parameters, error) {
	p := DefaultParameters()
	if err := p.Apply(params); err != nil {
		return DefaultParameters(), err
	}

	return p, nil
}

// Apply sets the keys in params on p.
func (p *Parameters) Apply(params map[string]string) error {
	// apply in key order so error reporting is stable
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		set, ok := paramSetters[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return errors.Wrapf(errs.ErrInvalidArgument, "unknown parameter %q", key)
		}
		if err := set(p, params[key]); err != nil {
			return errors.Mark(errors.Wrapf(err, "parameter %s=%q", key, params[key]), errs.ErrInvalidArgument)
		}
	}

	if p.MaxBufferSize > 0 && p.InitialBufferSize > p.MaxBufferSize {
		return errors.Wrapf(errs.ErrInvalidArgument, "InitialBufferSize %s exceeds MaxBufferSize %s",
			humanize.IBytes(p.InitialBufferSize), humanize.IBytes(p.MaxBufferSize))
	}

	return nil
}

// parseInt parses a base-10 integer. cast alone would read a leading 0 as octal and accept 0x.
func parseInt(v string, minValue int) (int, error) {
	digits, err := decimal(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	n, err := cast.ToIntE(digits)
	if err != nil {
		return 0, err
	}
	if n < minValue {
		return 0, errors.Newf("must be at least %d, got %d", minValue, n)
	}

	return n, nil
}

// decimal validates a signed base-10 literal and strips its leading zeros.
func decimal(v string) (string, error) {
	sign, digits := "", v
	if digits != "" && (digits[0] == '-' || digits[0] == '+') {
		sign, digits = digits[:1], digits[1:]
	}
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return "", errors.Newf("%q is not a base-10 integer", v)
	}
	if trimmed := strings.TrimLeft(digits, "0"); trimmed != "" {
		digits = trimmed
	} else {
		digits = "0"
	}
	if sign == "-" {
		return sign + digits, nil
	}

	return digits, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	default:
		return cast.ToBoolE(strings.TrimSpace(v))
	}
}

func parseSize(v string) (uint64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n < pool.DefaultInitialBufferSize {
		return 0, errors.Newf("must be at least %s, got %s",
			humanize.IBytes(pool.DefaultInitialBufferSize), humanize.IBytes(n))
	}

	return n, nil
}
