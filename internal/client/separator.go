package client

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/apex/log"

	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
)

// Engine is one source-separation tool run through the Python interpreter.
// Each engine has its own argument shape and output layout; Outputs maps the
// layout onto the four stem kinds.
type Engine struct {
	Name      string
	probeArgs []string
	args      func(source, outDir string) []string
	outputs   func(source, outDir string) map[model.StemKind]string
}

// Outputs returns where the engine writes each stem for source.
func (e *Engine) Outputs(source, outDir string) map[model.StemKind]string {
	return e.outputs(source, outDir)
}

func demucsEngine(modelName string) *Engine {
	return &Engine{
		Name:      "demucs",
		probeArgs: []string{"-m", "demucs", "--help"},
		args: func(source, outDir string) []string {
			return []string{"-m", "demucs", "--mp3", "--out", outDir, "--name", modelName, source}
		},
		outputs: func(source, outDir string) map[model.StemKind]string {
			return stemLayout(filepath.Join(outDir, modelName, trackName(source)), ".mp3")
		},
	}
}

func spleeterEngine() *Engine {
	return &Engine{
		Name:      "spleeter",
		probeArgs: []string{"-m", "spleeter", "separate", "-h"},
		args: func(source, outDir string) []string {
			return []string{"-m", "spleeter", "separate", "-p", "spleeter:4stems", "-o", outDir, source}
		},
		outputs: func(source, outDir string) map[model.StemKind]string {
			return stemLayout(filepath.Join(outDir, trackName(source)), ".wav")
		},
	}
}

func stemLayout(dir, ext string) map[model.StemKind]string {
	return map[model.StemKind]string{
		model.StemVocal: filepath.Join(dir, "vocals"+ext),
		model.StemDrums: filepath.Join(dir, "drums"+ext),
		model.StemBass:  filepath.Join(dir, "bass"+ext),
		model.StemOther: filepath.Join(dir, "other"+ext),
	}
}

func trackName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Separator picks whichever separation engine is usable right now.
type Separator struct {
	runner  Runner
	python  string
	engines []*Engine
}

func NewSeparator(runner Runner, tools *config.ToolsConfig) *Separator {
	return &Separator{
		runner:  runner,
		python:  tools.PythonPath,
		engines: []*Engine{demucsEngine(tools.DemucsModel), spleeterEngine()},
	}
}

// Select probes the interpreter and then each engine in preference order.
// Nothing is cached: a package installed between jobs is picked up.
func (s *Separator) Select(ctx context.Context) (*Engine, error) {
	if !Probe(ctx, s.runner, s.python, "--version") {
		return nil, s.unavailable()
	}
	for _, engine := range s.engines {
		if s.runner.Run(ctx, s.python, engine.probeArgs...).Succeeded {
			return engine, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, s.unavailable()
}

// Separate runs engine on source, writing into outDir, and returns where
// each stem is expected. Callers must verify the files exist.
func (s *Separator) Separate(ctx context.Context, engine *Engine, source, outDir string) (map[model.StemKind]string, error) {
	log.WithFields(log.Fields{
		"engine": engine.Name,
		"source": source,
	}).Info("separating stems")

	result := s.runner.Run(ctx, s.python, engine.args(source, outDir)...)
	if !result.Succeeded {
		toolErr := ErrorFromResult(engine.Name, result)
		if toolErr.Kind == KindToolInvocation {
			toolErr.Message = fmt.Sprintf("failed to separate stems with %s", engine.Name)
			if toolErr.Stderr != "" {
				toolErr.Message += ": " + lastLine(toolErr.Stderr)
			}
		}
		return nil, toolErr
	}
	return engine.Outputs(source, outDir), nil
}

func (s *Separator) unavailable() *ToolError {
	return &ToolError{
		Kind: KindSeparationUnavailable,
		Tool: s.python,
		Message: "Stem separation unavailable. Install Demucs (python3 -m pip install demucs) " +
			"or Spleeter (python3 -m pip install spleeter).",
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// EngineStatus is the probe result for one engine.
type EngineStatus struct {
	Name      string
	Available bool
}

// Engines probes every engine, in preference order, without stopping at the
// first usable one.
func (s *Separator) Engines(ctx context.Context) []EngineStatus {
	statuses := make([]EngineStatus, 0, len(s.engines))
	for _, engine := range s.engines {
		statuses = append(statuses, EngineStatus{
			Name:      engine.Name,
			Available: s.runner.Run(ctx, s.python, engine.probeArgs...).Succeeded,
		})
	}
	return statuses
}
