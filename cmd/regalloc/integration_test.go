package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// cliCase is one scenario from testdata/cases.yaml: a program, the arguments
// to run it with (the program path is appended), and substring expectations
// against stdout or the returned error.
type cliCase struct {
	Name      string   `yaml:"name"`
	Input     string   `yaml:"input"`
	Args      []string `yaml:"args"`
	Expect    []string `yaml:"expect,omitempty"`
	ExpectNot []string `yaml:"expect_not,omitempty"`
	WantErr   string   `yaml:"want_err,omitempty"`
	Skip      string   `yaml:"skip,omitempty"`
}

type cliCaseFile struct {
	Tests []cliCase `yaml:"tests"`
}

func TestCLI_yamlCases(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "cases.yaml"))
	require.NoError(t, err)
	var file cliCaseFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Tests)

	for _, tc := range file.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			path := filepath.Join(t.TempDir(), "prog.mir")
			require.NoError(t, os.WriteFile(path, []byte(tc.Input), 0o644))

			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(append(append([]string{}, tc.Args...), path))
			err := cmd.Execute()

			if tc.WantErr != "" {
				require.ErrorContains(t, err, tc.WantErr)
				return
			}
			require.NoError(t, err, "stderr: %s", errOut.String())
			output := out.String()
			for _, exp := range tc.Expect {
				require.Contains(t, output, exp)
			}
			for _, exp := range tc.ExpectNot {
				require.NotContains(t, output, exp)
			}
		})
	}
}
