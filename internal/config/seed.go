package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the initial data applied by `deepreport migrate --seed`.
type Seed struct {
	Users       []SeedUser       `yaml:"users"`
	ReportTypes []SeedReportType `yaml:"report_types"`
}

type SeedUser struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
	Role  string `yaml:"role"`
}

type SeedReportType struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
	Status string `yaml:"status"`
}

// LoadSeed parses a YAML seed file. Report types without a status are active.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	for i := range seed.ReportTypes {
		if seed.ReportTypes[i].Status == "" {
			seed.ReportTypes[i].Status = "active"
		}
		if seed.ReportTypes[i].Name == "" {
			return nil, fmt.Errorf("report type %d: name is required", i)
		}
	}
	for i := range seed.Users {
		if seed.Users[i].Role == "" {
			seed.Users[i].Role = "user"
		}
		if seed.Users[i].Email == "" {
			return nil, fmt.Errorf("user %d: email is required", i)
		}
	}

	return &seed, nil
}
