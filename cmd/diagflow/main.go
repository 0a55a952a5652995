// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/nlpodyssey/diagflow"
	"github.com/nlpodyssey/diagflow/config"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/nlpodyssey/diagflow/downloader"
	"github.com/nlpodyssey/diagflow/downstream"
	"github.com/nlpodyssey/diagflow/extract"
	"github.com/nlpodyssey/diagflow/lm"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	_ = godotenv.Load()

	configFlag := &cli.StringFlag{
		Name:     "config",
		Usage:    "YAML configuration of the run",
		Required: true,
		EnvVars:  []string{"DIAGFLOW_CONFIG"},
	}

	app := &cli.App{
		Name:  "diagflow",
		Usage: "Extract and analyze the activations of recurrent language models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(c *cli.Context, s string) error {
					return setDebugLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"DIAGFLOW_LOGLEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download a PyTorch checkpoint from huggingface.co",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "model-dir",
						Usage:    "directory to download the model to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "model",
						Usage:    "repository of the model, e.g. \"organization/model\"",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "access-token",
						Usage:   "huggingface.co access token",
						EnvVars: []string{"HF_ACCESS_TOKEN"},
					},
				},
				Action: func(c *cli.Context) error {
					return download(c.String("model-dir"), c.String("model"), c.String("access-token"))
				},
			},
			{
				Name:  "convert",
				Usage: "Convert a PyTorch checkpoint in the model directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "model-dir",
						Usage:    "directory of the model to convert",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "overwrite an existing model file",
					},
				},
				Action: func(c *cli.Context) error {
					return convert(c.String("model-dir"), c.Bool("overwrite"))
				},
			},
			{
				Name:  "init-states",
				Usage: "Compute the initial states and save them",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
					defer stop()
					return initStates(ctx, c.String("config"))
				},
			},
			{
				Name:  "extract",
				Usage: "Extract activations from a corpus",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "remove",
						Usage: "remove the extracted activations once done (dry run)",
					},
				},
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
					defer stop()
					return extractActivations(ctx, c.String("config"), c.Bool("remove"))
				},
			},
			{
				Name:  "agreement",
				Usage: "Score the model on a subject-verb agreement corpus",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
					defer stop()
					return agreement(ctx, c.String("config"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setDebugLevel(debugLevel string) error {
	level, err := zerolog.ParseLevel(debugLevel)
	if err != nil {
		return err
	}
	log.Logger = log.Level(level)
	return nil
}

func download(modelDir, model, accessToken string) error {
	log.Debug().Msgf("Downloading %s in dir: %s", model, modelDir)
	err := downloader.Download(modelDir, model, downloader.Options{AccessToken: accessToken})
	if err != nil {
		return err
	}
	log.Debug().Msg("Done.")
	return nil
}

func convert(modelDir string, overwrite bool) error {
	log.Debug().Msgf("Converting model in dir: %s", modelDir)
	err := lm.ConvertTorchCheckpoint(lm.ConverterConfig{
		ModelDir:         modelDir,
		OverwriteIfExist: overwrite,
	})
	if err != nil {
		return err
	}
	log.Debug().Msg("Done.")
	return nil
}

// load reads the configuration, loads the model and sets its init states.
func load(ctx context.Context, configPath string) (*config.Config, *diagflow.DiagFlow, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := (models.ExecContext{Device: cfg.Model.Device}).Validate(); err != nil {
		return nil, nil, err
	}
	log.Debug().Msgf("Loading model from %s", cfg.Model.Dir)
	df, err := diagflow.Load(cfg.Model.Dir, cfg.Model.Vocab)
	if err != nil {
		return nil, nil, err
	}
	err = df.SetInitStates(ctx, extract.InitSource{
		StatesPath: cfg.InitStates.Path,
		CorpusPath: cfg.InitStates.Corpus,
		UseDefault: cfg.InitStates.UseDefault,
		SaveTo:     cfg.InitStates.SaveTo,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set init states: %w", err)
	}
	return cfg, df, nil
}

func initStates(ctx context.Context, configPath string) error {
	cfg, _, err := load(ctx, configPath)
	if err != nil {
		return err
	}
	if cfg.InitStates.SaveTo == "" {
		log.Warn().Msg("init_states.save_to is empty: the computed states are discarded")
	}
	return nil
}

func extractActivations(ctx context.Context, configPath string, remove bool) error {
	cfg, df, err := load(ctx, configPath)
	if err != nil {
		return err
	}
	c, err := df.ImportCorpus(cfg.Corpus.Path, corpus.ImportOptions{
		HeaderFromFirstLine: cfg.Corpus.HeaderFromFirstLine,
		Header:              cfg.Corpus.Header,
	})
	if err != nil {
		return err
	}
	keys, err := cfg.Keys()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	res, err := df.Extract(ctx, c, diagflow.ExtractOptions{
		Keys:           keys,
		Dir:            cfg.Activations.Dir,
		Backend:        cfg.Activations.Backend,
		BatchSize:      cfg.Activations.BatchSize,
		DynamicDumping: cfg.Activations.DynamicDumping,
		Selection:      policy,
	})
	if err != nil {
		return err
	}
	log.Info().Msgf("Extracted activations of %d sentences", len(res.Written))

	if remove {
		return res.Remove()
	}
	return res.Store.Close()
}

func agreement(ctx context.Context, configPath string) error {
	cfg, df, err := load(ctx, configPath)
	if err != nil {
		return err
	}
	if cfg.Downstream.Corpus == "" {
		return fmt.Errorf("downstream.corpus is required")
	}
	c, err := df.ImportCorpus(cfg.Downstream.Corpus, corpus.ImportOptions{HeaderFromFirstLine: true})
	if err != nil {
		return err
	}
	acc, err := df.Agreement(ctx, c, downstream.AgreementOptions{
		BatchSize:   cfg.Activations.BatchSize,
		TargetField: cfg.Downstream.TargetField,
		FoilField:   cfg.Downstream.FoilField,
	})
	if err != nil {
		return err
	}
	fmt.Printf("accuracy: %.4f\n", acc)
	return nil
}
