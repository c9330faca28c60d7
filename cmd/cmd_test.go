package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScene = `
nodes:
  - name: Blink
    kind: template
    children:
      - name: Params
        interface: true
        props:
          rate: {type: double, value: 2, link: end}
      - name: LED
        type: Light
        props:
          level: {type: double, value: 0.5}
          sheet: {type: string, value: missing.png, uri: true}
  - name: Room
    children:
      - name: Clock
        props:
          tick: {type: double, link: start}
      - {name: lamp, kind: instance, template: Blink}
links:
  - start: Room/Clock#tick
    end: Room/lamp/Params#rate
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(scenePath, []byte(testScene), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	full := []string{args[0], "--config", filepath.Join(dir, "cfg"), "--log-level", "error"}
	for _, a := range args[1:] {
		if a == "SCENE" {
			a = scenePath
		}
		full = append(full, a)
	}
	rootCmd.SetArgs(full)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check", "SCENE")
	require.NoError(t, err)
	assert.Contains(t, out, "1 template(s)")
	assert.Contains(t, out, "file not found")

	_, err = run(t, "check", "SCENE", "--strict")
	assert.Error(t, err)
	strict = false
}

func TestTree(t *testing.T) {
	out, err := run(t, "tree", "SCENE", "--props")
	require.NoError(t, err)
	assert.Contains(t, out, "[instance]  lamp <- Blink")
	assert.Contains(t, out, "level = 0.5")
	treeOpts.Props = false
}

func TestQuery(t *testing.T) {
	out, err := run(t, "query", "SCENE", "$.links[*].valid")
	require.NoError(t, err)
	var valid []bool
	require.NoError(t, json.Unmarshal([]byte(out), &valid))
	assert.Equal(t, []bool{true}, valid)

	_, err = run(t, "query", "SCENE", "$.nodes[")
	assert.Error(t, err)
}

func TestJournal(t *testing.T) {
	_, err := run(t, "journal")
	assert.ErrorContains(t, err, "no journal configured")
}

func TestMissingScene(t *testing.T) {
	_, err := run(t, "tree", "/does/not/exist.yaml")
	assert.Error(t, err)
}
