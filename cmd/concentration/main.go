// Command concentration plays a game of Concentration in the terminal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/concentration-game/concentration-server-go/internal/config"
	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var configPath = flag.String("config", "", "path to configuration file")

const helpText = "Commands: a card number, (r)eset, (u)ndo, (c)heat, (q)uit"

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts := []concentration.Option{
		concentration.WithLogger(logger),
		concentration.WithSize(cfg.Game.Rows, cfg.Game.Cols),
	}
	if cfg.Game.Seed != 0 {
		opts = append(opts, concentration.WithSeed(cfg.Game.Seed))
	}

	if err := run(os.Stdin, os.Stdout, concentration.New(opts...)); err != nil {
		logger.Error("terminal session failed", zap.Error(err))
		os.Exit(1)
	}
}

// initLogger writes to stderr so log lines stay off the board.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.WarnLevel
	}
	if level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	return zapCfg.Build()
}

// run drives the model from line commands on in and renders every
// notification to out.
func run(in io.Reader, out io.Writer, m *concentration.Model) error {
	handle := m.Subscribe(func(m *concentration.Model, payload concentration.Payload) {
		if payload == concentration.PayloadCheat {
			renderCheat(out, m)
			return
		}
		renderModel(out, m)
	})
	defer m.Unsubscribe(handle)

	fmt.Fprintln(out, helpText)
	renderModel(out, m)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch cmd {
		case "":
			continue
		case "q", "quit":
			return nil
		case "r", "reset":
			m.Reset()
		case "u", "undo":
			m.Undo()
		case "c", "cheat":
			m.Cheat()
		case "h", "help", "?":
			fmt.Fprintln(out, helpText)
		default:
			index, err := strconv.Atoi(cmd)
			if err != nil {
				fmt.Fprintf(out, "unknown command %q. %s\n", cmd, helpText)
				continue
			}
			m.SelectCard(index)
		}
	}
	return scanner.Err()
}
