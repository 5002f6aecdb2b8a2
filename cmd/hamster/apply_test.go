package main

import (
	"testing"

	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifests(t *testing.T) {
	data := []byte(`apiVersion: hamster/v1
kind: DApp
metadata:
  name: web
spec:
  image: nginx
  port: 80
  cpu: 2
  memory: 1
---
apiVersion: hamster/v1
kind: DApp
metadata:
  name: site
spec:
  cid: bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi
  cpu: 1
  memory: 1
  replicas: 3
  available: 2
`)

	manifests, err := parseManifests(data)
	require.NoError(t, err)
	require.Len(t, manifests, 2)

	web, err := manifests[0].request()
	require.NoError(t, err)
	assert.Equal(t, "web", web.Name)
	assert.Equal(t, types.CliDeployment("nginx", 80), web.Method)
	assert.Equal(t, uint32(2), web.CPU)
	assert.Equal(t, uint32(1), web.Replicas)
	assert.Equal(t, uint32(1), web.Available)

	site, err := manifests[1].request()
	require.NoError(t, err)
	assert.Equal(t, types.MethodIpfs, site.Method.Kind)
	assert.Equal(t, uint32(3), site.Replicas)
	assert.Equal(t, uint32(2), site.Available)
}

func TestParseManifestsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "wrong kind", data: "kind: Service\nmetadata:\n  name: web\n"},
		{name: "missing name", data: "kind: DApp\nspec:\n  cid: x\n"},
		{name: "unknown field", data: "kind: DApp\nmetadata:\n  name: web\nspec:\n  gpu: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseManifests([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestManifestRequestMethod(t *testing.T) {
	tests := []struct {
		name    string
		spec    DAppSpec
		wantErr bool
	}{
		{name: "image", spec: DAppSpec{Image: "nginx", Port: 80}},
		{name: "cid", spec: DAppSpec{CID: "bafy"}},
		{name: "both", spec: DAppSpec{Image: "nginx", CID: "bafy"}, wantErr: true},
		{name: "neither", spec: DAppSpec{CPU: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Kind: "DApp", Metadata: ManifestMetadata{Name: "web"}, Spec: tt.spec}
			_, err := m.request()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
