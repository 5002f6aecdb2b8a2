package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/hamster/pkg/client"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a DApp manifest",
	Long: `Apply DApp manifests from a YAML file. A DApp that already exists
for the account has its deployment replaced; otherwise it is deployed.

Examples:
  # Deploy or update a DApp
  hamster apply -f dapp.yaml --account alice

  # Several DApps separated by ---
  hamster apply -f dapps.yaml --account alice`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// Manifest is a DApp definition read from YAML
type Manifest struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ManifestMetadata `yaml:"metadata"`
	Spec       DAppSpec         `yaml:"spec"`
}

type ManifestMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// DAppSpec sets either image (and port) or cid
type DAppSpec struct {
	Image     string `yaml:"image,omitempty"`
	Port      uint16 `yaml:"port,omitempty"`
	CID       string `yaml:"cid,omitempty"`
	CPU       uint32 `yaml:"cpu"`
	Memory    uint32 `yaml:"memory"`
	Replicas  uint32 `yaml:"replicas,omitempty"`
	Available uint32 `yaml:"available,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	manifests, err := parseManifests(data)
	if err != nil {
		return err
	}

	c, err := requireAccount(cmd)
	if err != nil {
		return fmt.Errorf("failed to connect to manager: %v", err)
	}
	defer c.Close()

	for _, m := range manifests {
		if err := applyDApp(c, m); err != nil {
			return err
		}
	}
	return nil
}

func parseManifests(data []byte) ([]*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var manifests []*Manifest
	for {
		var m Manifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if m.Kind != "DApp" {
			return nil, fmt.Errorf("unsupported resource kind: %s", m.Kind)
		}
		if m.Metadata.Name == "" {
			return nil, fmt.Errorf("metadata.name is required")
		}
		manifests = append(manifests, &m)
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no manifests in file")
	}
	return manifests, nil
}

func (m *Manifest) request() (provider.DeploymentRequest, error) {
	s := m.Spec
	var method types.DeploymentMethod
	switch {
	case s.Image != "" && s.CID != "":
		return provider.DeploymentRequest{}, fmt.Errorf("dapp %s: image and cid are mutually exclusive", m.Metadata.Name)
	case s.Image != "":
		method = types.CliDeployment(s.Image, s.Port)
	case s.CID != "":
		method = types.IpfsDeployment(s.CID)
	default:
		return provider.DeploymentRequest{}, fmt.Errorf("dapp %s: image or cid is required", m.Metadata.Name)
	}

	replicas := s.Replicas
	if replicas == 0 {
		replicas = 1
	}
	available := s.Available
	if available == 0 {
		available = replicas
	}

	return provider.DeploymentRequest{
		Name:      m.Metadata.Name,
		Method:    method,
		CPU:       s.CPU,
		Memory:    s.Memory,
		Replicas:  replicas,
		Available: available,
	}, nil
}

func applyDApp(c *client.Client, m *Manifest) error {
	req, err := m.request()
	if err != nil {
		return err
	}
	name := m.Metadata.Name
	ctx := context.Background()

	existing, err := c.GetDAppByName(ctx, name)
	if err == nil && existing != nil {
		fmt.Printf("Updating dapp: %s\n", name)
		id, err := c.ChangeSpecification(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to update dapp: %v", err)
		}
		fmt.Printf("✓ DApp updated: %s (ID: %d)\n", name, id)
		return nil
	}
	if err != nil && !errors.Is(err, provider.ErrNotHaveDApp) {
		return fmt.Errorf("failed to look up dapp: %v", err)
	}

	fmt.Printf("Creating dapp: %s\n", name)
	id, err := c.RequestDeployment(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create dapp: %v", err)
	}
	fmt.Printf("✓ DApp created: %s (ID: %d)\n", name, id)
	return nil
}
