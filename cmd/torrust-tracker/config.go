package main

import (
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/nuts-rice/torrust-tracker/api"
	"github.com/nuts-rice/torrust-tracker/database"
	httpfrontend "github.com/nuts-rice/torrust-tracker/frontend/http"
	udpfrontend "github.com/nuts-rice/torrust-tracker/frontend/udp"
	"github.com/nuts-rice/torrust-tracker/storage/memory"
	"github.com/nuts-rice/torrust-tracker/tracker"
)

// ConfigFile represents a namespaced YAML configuration file.
type ConfigFile struct {
	MainConfigBlock struct {
		tracker.Config `yaml:",inline"`
		PrometheusAddr string              `yaml:"prometheus_addr"`
		HTTPConfig     httpfrontend.Config `yaml:"http"`
		UDPConfig      udpfrontend.Config  `yaml:"udp"`
		APIConfig      api.Config          `yaml:"api"`
		Storage        memory.Config       `yaml:"storage"`
		Database       database.Config     `yaml:"database"`
	} `yaml:"torrust"`
}

// ParseConfigFile returns a new ConfigFile given the path to a YAML
// configuration file.
//
// It supports relative and absolute paths and environment variables.
func ParseConfigFile(path string) (*ConfigFile, error) {
	if path == "" {
		return nil, errors.New("no config path specified")
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contents, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var cfgFile ConfigFile
	if err := yaml.Unmarshal(contents, &cfgFile); err != nil {
		return nil, err
	}

	return &cfgFile, nil
}
