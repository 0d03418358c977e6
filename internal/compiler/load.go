package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/temporal/internal/ir"
)

// LoadModels compiles the models defined at path, which is either a single
// .cue file or a directory of .cue files forming one CUE package.
func LoadModels(path string) ([]ir.ModelSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("load models: no CUE instances in %s", path)
		}
		if err := instances[0].Err; err != nil {
			return nil, fmt.Errorf("load models: %w", err)
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load models: %w", err)
		}
		value = ctx.CompileBytes(data, cue.Filename(filepath.Base(path)))
	}

	specs, err := CompileModels(value)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("load models: no models defined in %s", path)
	}
	return specs, nil
}

// LoadRegistry loads the models at path and builds a validated Registry.
func LoadRegistry(path string) (*Registry, error) {
	specs, err := LoadModels(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(specs...)
}
