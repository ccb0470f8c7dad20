// Package engine wires one configuration into a ready-to-use registry,
// orchestrator and evolution controller sharing a single store.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/diffusion"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/evolution"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operators"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/registry"
	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/state"
)

// Engine holds the wired components. Close releases the store.
type Engine struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        *state.Store
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	Controller   *evolution.Controller
}

type settings struct {
	logger  *zap.Logger
	extra   []operators.Builtin
	simOpts []diffusion.Option
}

// Option customizes New.
type Option func(*settings)

// WithLogger uses l instead of building one from cfg.Logging.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithOperators registers additional operators next to the built-ins.
func WithOperators(ops ...operators.Builtin) Option {
	return func(s *settings) { s.extra = append(s.extra, ops...) }
}

// WithSimulatorOptions forwards options (e.g. a seed) to the controller's
// simulator.
func WithSimulatorOptions(opts ...diffusion.Option) Option {
	return func(s *settings) { s.simOpts = append(s.simOpts, opts...) }
}

// New opens the store, registers and seals the operators, and builds the
// orchestrator and controller. Registration and graph errors are returned
// as-is.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if err := cfg.Validate(); err != nil {
		return nil, operator.Wrap(operator.KindValidation, "engine", "", err)
	}

	logger := s.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	store, err := state.NewStore(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &Engine{Config: cfg, Logger: logger, Store: store}
	if err := e.wire(s); err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("engine ready",
		zap.String("dsn", cfg.Store.DSN),
		zap.Int("operators", len(e.Registry.IDs())),
		zap.Int("strategies", len(e.Controller.Strategies())))
	return e, nil
}

func (e *Engine) wire(s settings) error {
	reg := registry.New(
		registry.WithTimeout(e.Config.Registry.ExecutionTimeout),
		registry.WithLogger(e.Logger))
	if err := operators.RegisterBuiltins(reg); err != nil {
		return err
	}
	for _, op := range s.extra {
		if err := reg.Register(op.Descriptor.ID, op.Descriptor, op.Executable); err != nil {
			return err
		}
	}
	if err := reg.ValidateDependencyGraph(); err != nil {
		return err
	}
	e.Registry = reg

	memory, err := orchestrator.NewStageMemory(e.Store.DB())
	if err != nil {
		return fmt.Errorf("stage memory: %w", err)
	}
	e.Orchestrator = orchestrator.New(reg,
		orchestrator.WithLogger(e.Logger),
		orchestrator.WithMemory(memory))

	ctrlOpts := []evolution.Option{
		evolution.WithConfig(e.Config),
		evolution.WithStore(e.Store),
		evolution.WithResolver(reg.Has),
		evolution.WithLogger(e.Logger),
		evolution.WithSimulatorOptions(s.simOpts...),
	}
	if path := e.Config.Evolution.StrategiesFile; path != "" {
		catalog, err := evolution.LoadStrategies(path)
		if err != nil {
			return err
		}
		ctrlOpts = append(ctrlOpts, evolution.WithStrategies(catalog))
	}
	ctrl, err := evolution.New(e.Orchestrator, ctrlOpts...)
	if err != nil {
		return err
	}
	e.Controller = ctrl
	return nil
}

// Close flushes the logger and closes the store.
func (e *Engine) Close() error {
	_ = e.Logger.Sync()
	return e.Store.Close()
}
