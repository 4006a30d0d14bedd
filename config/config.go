// Package config reads the static configuration of the tasker.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pdok/tasker/tilemath"
	"github.com/pdok/tasker/tms20"
	"github.com/pdok/tasker/zoomrange"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	TileMatrixSet string                `yaml:"tileMatrixSet" default:"WorldCRS84Quad" validate:"required"`
	ZoomBands     []zoomrange.ZoomRange `yaml:"zoomBands" validate:"required,min=1"`
	BBoxSizeTiles int                   `yaml:"bboxSizeTiles" default:"10000" validate:"gt=0"`
	Split         Split                 `yaml:"split"`
	Merge         Merge                 `yaml:"merge"`
	Storage       Storage               `yaml:"storage"`
	JobManager    JobManager            `yaml:"jobManager"`
}

type Split struct {
	TaskBatchSize int    `yaml:"taskBatchSize" default:"100" validate:"gt=0"`
	JobType       string `yaml:"jobType" default:"Ingestion_New" validate:"required"`
	TaskType      string `yaml:"taskType" default:"split-tiles" validate:"required"`
}

type Merge struct {
	TaskBatchSize int    `yaml:"taskBatchSize" default:"100" validate:"gt=0"`
	TileBatchSize int    `yaml:"tileBatchSize" default:"10000" validate:"gt=0"`
	JobType       string `yaml:"jobType" default:"Ingestion_Update" validate:"required"`
	TaskType      string `yaml:"taskType" default:"tilesMerging" validate:"required"`
}

// Storage is where merge targets live, its type is the type of a merge task's target source.
type Storage struct {
	Type string `yaml:"type" default:"S3" validate:"oneof=S3 FS"`
}

type JobManager struct {
	URL          string        `yaml:"url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	ProducerName string        `yaml:"producerName" default:"tasker"`
}

// Load reads, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("could not set config defaults: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, band := range c.ZoomBands {
		if err := band.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if _, err := c.Grid(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Grid loads the configured embedded tile matrix set.
func (c *Config) Grid() (*tilemath.Grid, error) {
	tms, err := tms20.LoadEmbeddedTileMatrixSet(c.TileMatrixSet)
	if err != nil {
		return nil, err
	}
	return tilemath.NewGrid(tms)
}
