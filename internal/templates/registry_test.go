package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplates(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	for _, name := range []string{"competition", "usecase", "objectives", "audience", "positioning"} {
		tpl, err := reg.Template(name)
		require.NoError(t, err, name)
		assert.Equal(t, KindStage, tpl.Kind)
		assert.NotEmpty(t, tpl.Schema)
	}

	cal, err := reg.Template("calendar_window")
	require.NoError(t, err)
	assert.Equal(t, KindCalendar, cal.Kind)
	for _, tt := range []string{"educational", "problem_solution", "trust_story"} {
		s, ok := cal.Strategy(tt)
		assert.True(t, ok, tt)
		assert.NotEmpty(t, s)
	}

	assert.Len(t, reg.List(), 6)
}

func TestRegistryUnknownTemplate(t *testing.T) {
	_, err := NewRegistry().Template("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	fsys := fstest.MapFS{
		"t/bad.yaml": {Data: []byte("name: x\nkind: stage\nrole: r\nprompt: p\nschema: '{}'\ntemprature: 1\n")},
	}
	err := NewRegistry().LoadFS(fsys, "t")
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Len(t, lerr.Failures, 1)
	assert.Contains(t, lerr.Failures[0], "temprature")
}

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate([]byte("name: hooks\nkind: stage\nrole: copywriter\nprompt: 'Write hooks for {{.company}}'\nschema: '{}'\n"))
	require.NoError(t, err)
	assert.Equal(t, "hooks", tpl.Name)
	assert.Equal(t, KindStage, tpl.Kind)

	_, err = ParseTemplate([]byte("name: hooks\nrole: copywriter\nprompt: p\n"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = ParseTemplate([]byte("name: [unclosed"))
	require.ErrorContains(t, err, "decode template")
}

func TestValidateTemplate(t *testing.T) {
	cases := []struct {
		name string
		tpl  Template
		code string
	}{
		{"missing kind", Template{Name: "a", Role: "r", Prompt: "p"}, "invalid_kind"},
		{"bad schema", Template{Name: "a", Kind: KindStage, Role: "r", Prompt: "p", Schema: "{oops"}, "invalid_schema"},
		{"bad syntax", Template{Name: "a", Kind: KindStage, Role: "r", Prompt: "{{.x", Schema: "{}"}, "invalid_syntax"},
		{"no strategies", Template{Name: "a", Kind: KindCalendar, Role: "r", Prompt: "p"}, "missing_strategies"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTemplate(&tc.tpl)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			codes := make([]string, 0, len(verr.Issues))
			for _, is := range verr.Issues {
				codes = append(codes, is.Code)
			}
			assert.Contains(t, codes, tc.code)
		})
	}
}

func TestLoadDirectoryOverridesBuiltin(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	dir := t.TempDir()
	override := strings.Join([]string{
		"name: objectives",
		"kind: stage",
		"version: \"2\"",
		"role: You are a growth lead.",
		"prompt: \"Company: {{.company}}\"",
		"schema: '{\"objectives\": []}'",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objectives.yaml"), []byte(override), 0o644))
	require.NoError(t, reg.LoadDirectory(dir))

	tpl, err := reg.Template("objectives")
	require.NoError(t, err)
	assert.Equal(t, "2", tpl.Version)
	assert.Equal(t, "You are a growth lead.", tpl.Role)
}
